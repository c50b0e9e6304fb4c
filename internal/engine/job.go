package engine

import (
	"context"
	"sync"

	"mediadesk/internal/protocol"
)

const streamBuffer = 16

// job is the response stream of one request. Loading events are dropped once
// the stream is finished; the first terminal response wins.
type job struct {
	cancel context.CancelFunc
	out    chan protocol.Response

	mu       sync.Mutex
	finished bool
}

func newJob(cancel context.CancelFunc) *job {
	return &job{cancel: cancel, out: make(chan protocol.Response, streamBuffer)}
}

func (j *job) emit(resp protocol.Response) {
	if resp.Terminal() {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.out <- resp
}

// finish delivers the terminal response and closes the stream. It reports
// whether this call did so.
func (j *job) finish(resp protocol.Response) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false
	}
	j.finished = true
	j.out <- resp
	close(j.out)
	return true
}
