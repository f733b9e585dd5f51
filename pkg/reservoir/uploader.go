// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"context"
	"runtime"
	"sync"

	"github.com/kraklabs/alto/pkg/store"
)

// uploadJob is one async PUT: bytes destined for path.
type uploadJob struct {
	path string
	data []byte
}

// uploader runs a bounded worker pool for async reservoir PUTs, sized
// to the CPU count by default, per spec §4.H. It is grounded on the
// jobs-channel-plus-WaitGroup worker pool pattern used elsewhere in
// this codebase for CPU/IO-bound fan-out.
type uploader struct {
	st       store.Store
	jobs     chan uploadJob
	wg       sync.WaitGroup
	mu       sync.Mutex
	firstErr error
}

func newUploader(st store.Store, workers int) *uploader {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	u := &uploader{st: st, jobs: make(chan uploadJob, workers*2)}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.work()
	}
	return u
}

func (u *uploader) work() {
	defer u.wg.Done()
	for job := range u.jobs {
		if err := u.st.Pipe(context.Background(), job.path, job.data); err != nil {
			u.mu.Lock()
			if u.firstErr == nil {
				u.firstErr = err
			}
			u.mu.Unlock()
			continue
		}
		recordBatchFlushed()
	}
}

// submit enqueues a PUT. Blocks if the queue is full, providing natural
// backpressure against a slow upstream store.
func (u *uploader) submit(path string, data []byte) {
	u.jobs <- uploadJob{path: path, data: data}
}

// close waits for the queue to drain, returning the first error any
// worker observed, if any.
func (u *uploader) close() error {
	close(u.jobs)
	u.wg.Wait()
	return u.firstErr
}
