package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mediadesk/internal/logging"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
)

// Kind names an engine context.
type Kind string

const (
	KindMedia         Kind = "media"
	KindTranscription Kind = "transcription"
)

// Executor performs requests inside an engine context. Execute may call emit
// any number of times with loading events and returns the terminal response
// or an error, which the handle converts into a terminal error response.
type Executor interface {
	Execute(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error)
	Close() error
}

// Factory constructs the executor hosted by a new engine context.
type Factory func() Executor

// ErrBusy and ErrTerminated are returned by Send.
var (
	ErrBusy       = services.ErrEngineBusy
	ErrTerminated = services.ErrEngineTerminated
)

type envelope struct {
	ctx context.Context
	req protocol.Request
	job *job
}

// Handle is the coordinator's reference to a live engine context.
type Handle struct {
	kind   Kind
	logger *slog.Logger

	requests chan envelope
	quit     chan struct{}
	done     chan struct{}

	mu         sync.Mutex
	current    *job
	terminated bool
}

// Spawn starts an engine context hosting the executor built by factory.
func Spawn(kind Kind, factory Factory, logger *slog.Logger) *Handle {
	h := &Handle{
		kind:     kind,
		logger:   logging.NewComponentLogger(logger, "engine").With(logging.String(logging.FieldEngine, string(kind))),
		requests: make(chan envelope, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop(factory)
	return h
}

// Kind reports which engine the handle hosts.
func (h *Handle) Kind() Kind { return h.kind }

// Busy reports whether a request is in flight.
func (h *Handle) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Terminated reports whether Terminate has been called.
func (h *Handle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// Done is closed once the engine context has exited and its executor is closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Send dispatches req and returns its response stream. The stream yields
// events in emission order and is closed after exactly one terminal response.
// Callers must drain it.
func (h *Handle) Send(ctx context.Context, req protocol.Request) (<-chan protocol.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%s engine: nil request", h.kind)
	}
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return nil, services.Wrap(ErrTerminated, string(h.kind), string(req.Type()), "engine context has been terminated", nil)
	}
	if h.current != nil {
		h.mu.Unlock()
		return nil, services.Wrap(ErrBusy, string(h.kind), string(req.Type()), "a job is already running", nil)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	j := newJob(cancel)
	h.current = j
	h.mu.Unlock()

	h.requests <- envelope{ctx: jobCtx, req: req, job: j}
	return j.out, nil
}

// Terminate cancels any in-flight job, ends its stream with an
// EngineTerminated error, and shuts the engine context down. The executor is
// closed by the context goroutine; wait on Done to observe it. Calling
// Terminate more than once is a no-op.
func (h *Handle) Terminate() {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return
	}
	h.terminated = true
	current := h.current
	h.current = nil
	h.mu.Unlock()

	close(h.quit)
	if current != nil {
		current.cancel()
		current.finish(protocol.Failure(services.Wrap(ErrTerminated, string(h.kind), "terminate", "engine terminated while a job was running", nil)))
		h.logger.Info("in-flight job aborted by termination", logging.String(logging.FieldEventType, "job_terminated"))
	}
}

func (h *Handle) loop(factory Factory) {
	defer close(h.done)
	executor := factory()
	defer func() {
		if err := executor.Close(); err != nil {
			h.logger.Warn("engine close failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "engine_close_failed"),
				logging.String(logging.FieldErrorHint, "leftover temporary files may need manual removal"),
			)
		}
		h.logger.Debug("engine context exited", logging.String(logging.FieldEventType, "engine_exit"))
	}()

	for {
		select {
		case <-h.quit:
			return
		case env := <-h.requests:
			h.run(executor, env)
		}
	}
}

func (h *Handle) run(executor Executor, env envelope) {
	defer env.job.cancel()
	if env.ctx.Err() != nil {
		// Cancelled before the context picked it up. A terminated job has
		// already been finished by Terminate.
		h.release(env.job)
		env.job.finish(protocol.Failure(services.Wrap(services.ErrExecutionFailed, string(h.kind), string(env.req.Type()), "job cancelled before it started", env.ctx.Err())))
		return
	}
	logger := logging.WithContext(env.ctx, h.logger)
	start := time.Now()
	logger.Debug("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("request_type", string(env.req.Type())),
	)

	final := h.execute(executor, env)
	// Release before delivering so a caller that reacts to the terminal
	// response can send the next request immediately.
	h.release(env.job)
	env.job.finish(final)

	attrs := []logging.Attr{
		logging.String("request_type", string(env.req.Type())),
		logging.String("status", string(final.Status)),
		logging.Duration("elapsed", time.Since(start)),
	}
	if final.Status == protocol.StatusError {
		attrs = append(attrs, logging.ErrorKind(final.Err), logging.String("error_message", final.Message))
	}
	logger.Debug("job finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "job_complete"))...)...)
}

func (h *Handle) execute(executor Executor, env envelope) (final protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			final = protocol.Failure(services.Wrap(services.ErrExecutionFailed, string(h.kind), string(env.req.Type()), fmt.Sprintf("engine panic: %v", r), nil))
		}
	}()

	resp, err := executor.Execute(env.ctx, env.req, env.job.emit)
	if err != nil {
		return protocol.Failure(err)
	}
	if !resp.Terminal() {
		return protocol.Failure(services.Wrap(services.ErrExecutionFailed, string(h.kind), string(env.req.Type()), "engine returned a non-terminal response", nil))
	}
	return resp
}

func (h *Handle) release(j *job) {
	h.mu.Lock()
	if h.current == j {
		h.current = nil
	}
	h.mu.Unlock()
}
