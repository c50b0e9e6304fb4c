package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mediadesk/internal/engine"
	"mediadesk/internal/logging"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
)

type fakeExecutor struct {
	release chan struct{}
	fail    error
	closed  atomic.Bool
	panics  bool
}

func (f *fakeExecutor) Execute(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error) {
	emit(protocol.Loading("starting engine"))
	emit(protocol.Loading("loading file"))
	if f.panics {
		panic("boom")
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return protocol.Response{}, ctx.Err()
		}
	}
	if f.fail != nil {
		return protocol.Response{}, f.fail
	}
	return protocol.SuccessOutput(protocol.NewBytesBlob("converted_a.mp3", "", []byte("ok"))), nil
}

func (f *fakeExecutor) Close() error {
	f.closed.Store(true)
	return nil
}

func drain(t *testing.T, stream <-chan protocol.Response) []protocol.Response {
	t.Helper()
	var out []protocol.Response
	timeout := time.After(5 * time.Second)
	for {
		select {
		case resp, ok := <-stream:
			if !ok {
				return out
			}
			out = append(out, resp)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func assertStreamShape(t *testing.T, events []protocol.Response) protocol.Response {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("empty stream")
	}
	for i, ev := range events[:len(events)-1] {
		if ev.Status != protocol.StatusLoading {
			t.Fatalf("event %d is %q, want loading", i, ev.Status)
		}
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("last event %q is not terminal", last.Status)
	}
	return last
}

func TestSendStreamsLoadingThenTerminal(t *testing.T) {
	exec := &fakeExecutor{}
	h := engine.Spawn(engine.KindMedia, func() engine.Executor { return exec }, logging.NewNop())
	defer h.Terminate()

	stream, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)
	last := assertStreamShape(t, events)
	if last.Status != protocol.StatusSuccess || last.OutputName != "converted_a.mp3" {
		t.Fatalf("unexpected terminal %+v", last)
	}
	if len(events) != 3 || events[0].Message != "starting engine" || events[1].Message != "loading file" {
		t.Fatalf("events out of order: %+v", events)
	}
	if h.Busy() {
		t.Fatal("handle still busy after terminal")
	}
}

func TestSendRejectsWhileBusy(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	h := engine.Spawn(engine.KindMedia, func() engine.Executor { return exec }, logging.NewNop())
	defer h.Terminate()

	first, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := h.Send(context.Background(), protocol.ExtractAudio{}); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("second Send error = %v, want busy", err)
	}
	close(exec.release)
	assertStreamShape(t, drain(t, first))

	again, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatWAV})
	if err != nil {
		t.Fatalf("Send after completion: %v", err)
	}
	assertStreamShape(t, drain(t, again))
}

func TestExecutorErrorBecomesTerminalError(t *testing.T) {
	cause := services.Wrap(services.ErrExecutionFailed, "media", "convert", "ffmpeg exited with status 1", nil)
	h := engine.Spawn(engine.KindMedia, func() engine.Executor { return &fakeExecutor{fail: cause} }, logging.NewNop())
	defer h.Terminate()

	stream, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	last := assertStreamShape(t, drain(t, stream))
	if last.Status != protocol.StatusError || !errors.Is(last.Err, services.ErrExecutionFailed) {
		t.Fatalf("unexpected terminal %+v", last)
	}
	if last.Kind != "execution_failed" {
		t.Fatalf("kind = %q", last.Kind)
	}
}

func TestPanicBecomesExecutionFailed(t *testing.T) {
	h := engine.Spawn(engine.KindMedia, func() engine.Executor { return &fakeExecutor{panics: true} }, logging.NewNop())
	defer h.Terminate()

	stream, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	last := assertStreamShape(t, drain(t, stream))
	if !errors.Is(last.Err, services.ErrExecutionFailed) {
		t.Fatalf("expected execution failure, got %+v", last)
	}
}

func TestCancelledBeforeStartIsExecutionFailure(t *testing.T) {
	h := engine.Spawn(engine.KindMedia, func() engine.Executor { return &fakeExecutor{} }, logging.NewNop())
	defer h.Terminate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream, err := h.Send(ctx, protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)
	if len(events) != 1 {
		t.Fatalf("got %d events, want only the terminal one", len(events))
	}
	last := events[0]
	if last.Kind != "execution_failed" || !errors.Is(last.Err, context.Canceled) {
		t.Fatalf("terminal = %+v", last)
	}
	if errors.Is(last.Err, services.ErrEngineTerminated) {
		t.Fatal("cancellation must not be reported as termination")
	}

	stream, err = h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3})
	if err != nil {
		t.Fatalf("Send after cancellation: %v", err)
	}
	if last := assertStreamShape(t, drain(t, stream)); last.Status != protocol.StatusSuccess {
		t.Fatalf("second job = %+v", last)
	}
}

func TestTerminateMidJobEndsStreamAndClosesExecutor(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	h := engine.Spawn(engine.KindTranscription, func() engine.Executor { return exec }, logging.NewNop())

	stream, err := h.Send(context.Background(), protocol.Transcribe{ModelID: "balanced"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.Terminate()
	h.Terminate()

	last := assertStreamShape(t, drain(t, stream))
	if !errors.Is(last.Err, services.ErrEngineTerminated) {
		t.Fatalf("expected terminated error, got %+v", last)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine context did not exit")
	}
	if !exec.closed.Load() {
		t.Fatal("executor was not closed")
	}
	if _, err := h.Send(context.Background(), protocol.Convert{Format: protocol.FormatMP3}); !errors.Is(err, engine.ErrTerminated) {
		t.Fatalf("Send after Terminate error = %v", err)
	}
}

func TestTerminateIdleHandle(t *testing.T) {
	var built atomic.Int32
	exec := &fakeExecutor{}
	h := engine.Spawn(engine.KindMedia, func() engine.Executor {
		built.Add(1)
		return exec
	}, logging.NewNop())
	h.Terminate()
	<-h.Done()
	if built.Load() != 1 || !exec.closed.Load() {
		t.Fatalf("built=%d closed=%v", built.Load(), exec.closed.Load())
	}
	if !h.Terminated() {
		t.Fatal("Terminated() = false")
	}
}
