package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediadesk/internal/audio"
	"mediadesk/internal/engine"
	"mediadesk/internal/logging"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
	"mediadesk/internal/sink"
)

const defaultInferenceTick = 500 * time.Millisecond

// Options wires a coordinator.
type Options struct {
	Media         engine.Factory
	Transcription engine.Factory
	// Decoder performs the extract-to-samples handoff. Nil selects audio.WAVDecoder.
	Decoder audio.Decoder
	Sink    sink.Sink
	// InferenceTick paces the cyclic progress indicator while inference runs.
	InferenceTick time.Duration
	// TerminateMediaAfterJob tears the media context down after every job.
	TerminateMediaAfterJob bool
	// Observe sees every response of every job, in order.
	Observe func(engine.Kind, protocol.Response)
	Logger  *slog.Logger
}

// Transcript is the result of a transcription job.
type Transcript struct {
	Text     string             `json:"text"`
	Segments []protocol.Segment `json:"segments"`
}

// Coordinator owns at most one live handle per engine kind.
type Coordinator struct {
	opts      Options
	logger    *slog.Logger
	factories map[engine.Kind]engine.Factory
	machines  map[engine.Kind]*Machine

	mu      sync.Mutex
	handles map[engine.Kind]*engine.Handle
	closed  bool

	subsMu  sync.Mutex
	subs    map[int]func(JobState)
	nextSub int
}

// New builds a coordinator. Engine contexts are spawned on first use.
func New(opts Options) *Coordinator {
	if opts.InferenceTick <= 0 {
		opts.InferenceTick = defaultInferenceTick
	}
	if opts.Decoder == nil {
		opts.Decoder = audio.WAVDecoder{}
	}
	c := &Coordinator{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "coordinator"),
		factories: map[engine.Kind]engine.Factory{
			engine.KindMedia:         opts.Media,
			engine.KindTranscription: opts.Transcription,
		},
		handles: make(map[engine.Kind]*engine.Handle, 2),
		subs:    make(map[int]func(JobState)),
	}
	c.machines = map[engine.Kind]*Machine{
		engine.KindMedia:         newMachine(engine.KindMedia, c.broadcast),
		engine.KindTranscription: newMachine(engine.KindTranscription, c.broadcast),
	}
	return c
}

// Convert turns file into format using the media engine.
func (c *Coordinator) Convert(ctx context.Context, file protocol.Blob, format protocol.Format) (*protocol.BytesBlob, error) {
	resp, err := c.dispatch(ctx, engine.KindMedia, protocol.Convert{File: file, Format: format}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// ExtractAudio produces 16 kHz mono samples from a media file. The media job
// only succeeds once the extracted audio has been decoded.
func (c *Coordinator) ExtractAudio(ctx context.Context, file protocol.Blob) ([]float32, error) {
	var samples []float32
	_, err := c.dispatch(ctx, engine.KindMedia, protocol.ExtractAudio{File: file}, func(ctx context.Context, resp protocol.Response) error {
		if resp.Output == nil {
			return services.Wrap(services.ErrDecodeFailed, "coordinator", "decode", "media engine returned no audio", nil)
		}
		decoded, err := audio.Handoff(ctx, c.opts.Decoder, resp.Output)
		if err != nil {
			return err
		}
		samples = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// Transcribe runs speech recognition on 16 kHz mono samples.
func (c *Coordinator) Transcribe(ctx context.Context, samples []float32, modelID string) (*Transcript, error) {
	resp, err := c.dispatch(ctx, engine.KindTranscription, protocol.Transcribe{Samples: samples, ModelID: modelID}, nil)
	if err != nil {
		return nil, err
	}
	return &Transcript{Text: resp.Text, Segments: resp.Segments}, nil
}

// TranscribeMedia extracts, decodes and transcribes file. A failed extraction
// or decode returns before the transcription engine is involved.
func (c *Coordinator) TranscribeMedia(ctx context.Context, file protocol.Blob, modelID string) (*Transcript, error) {
	if c.machines[engine.KindTranscription].State().Busy() {
		return nil, services.Wrap(services.ErrEngineBusy, string(engine.KindTranscription), "transcribe media", "a job is already running", nil)
	}
	samples, err := c.ExtractAudio(ctx, file)
	if err != nil {
		return nil, err
	}
	return c.Transcribe(ctx, samples, modelID)
}

// Busy reports whether either engine is running a job.
func (c *Coordinator) Busy() bool {
	for _, m := range c.machines {
		if m.State().Busy() {
			return true
		}
	}
	return false
}

// State returns the job state of one engine.
func (c *Coordinator) State(kind engine.Kind) JobState {
	m, ok := c.machines[kind]
	if !ok {
		return JobState{Engine: kind, Status: StatusIdle}
	}
	return m.State()
}

// States returns the media and transcription states, in that order.
func (c *Coordinator) States() []JobState {
	return []JobState{c.State(engine.KindMedia), c.State(engine.KindTranscription)}
}

// Reset returns a finished engine state to idle.
func (c *Coordinator) Reset(kind engine.Kind) error {
	m, ok := c.machines[kind]
	if !ok {
		return services.Wrap(services.ErrConfiguration, string(kind), "reset", "unknown engine", nil)
	}
	return m.reset()
}

// Subscribe registers fn for every state change. The returned func removes
// the subscription. fn runs on the goroutine that caused the change and must
// not block.
func (c *Coordinator) Subscribe(fn func(JobState)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Coordinator) broadcast(state JobState) {
	c.subsMu.Lock()
	fns := make([]func(JobState), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// Save hands content to the configured sink.
func (c *Coordinator) Save(ctx context.Context, name string, content []byte) (string, error) {
	if c.opts.Sink == nil {
		return "", services.Wrap(services.ErrConfiguration, "coordinator", "save", "no output sink configured", nil)
	}
	return c.opts.Sink.Save(ctx, name, content)
}

// Terminate tears down the engine context of kind. A job in flight ends with
// an EngineTerminated error; the next request spawns a fresh context.
func (c *Coordinator) Terminate(kind engine.Kind) {
	c.mu.Lock()
	h := c.handles[kind]
	delete(c.handles, kind)
	c.mu.Unlock()
	if h == nil {
		return
	}
	h.Terminate()
	<-h.Done()
	c.logger.Info("engine context terminated",
		logging.String(logging.FieldEngine, string(kind)),
		logging.String(logging.FieldEventType, "engine_terminated"),
	)
}

// Close terminates both engine contexts. Later requests fail with
// EngineTerminated.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Terminate(engine.KindMedia)
	c.Terminate(engine.KindTranscription)
	return nil
}

func (c *Coordinator) handle(kind engine.Kind) (*engine.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, services.Wrap(services.ErrEngineTerminated, string(kind), "spawn", "coordinator closed", nil)
	}
	if h := c.handles[kind]; h != nil && !h.Terminated() {
		return h, nil
	}
	factory := c.factories[kind]
	if factory == nil {
		return nil, services.Wrap(services.ErrConfiguration, string(kind), "spawn", "engine not configured", nil)
	}
	h := engine.Spawn(kind, factory, c.opts.Logger)
	c.handles[kind] = h
	return h, nil
}

// dispatch runs req on the engine of kind and drives its state machine. post,
// when set, runs on a successful terminal response before the job is marked
// successful; its error fails the job.
func (c *Coordinator) dispatch(ctx context.Context, kind engine.Kind, req protocol.Request, post func(context.Context, protocol.Response) error) (protocol.Response, error) {
	m := c.machines[kind]
	jobID := uuid.NewString()
	if err := m.begin(jobID, "starting", kind == engine.KindMedia); err != nil {
		return protocol.Response{}, err
	}

	ctx = services.WithEngine(services.WithJobID(ctx, jobID), string(kind))
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("job dispatched",
		logging.String(logging.FieldEventType, "job_dispatch"),
		logging.String("request_type", string(req.Type())),
	)
	started := time.Now()

	final, err := c.exchange(ctx, kind, m, req)
	if err == nil && post != nil {
		err = post(ctx, final)
	}
	if c.opts.TerminateMediaAfterJob && kind == engine.KindMedia {
		c.Terminate(engine.KindMedia)
	}

	if err != nil {
		m.fail(err)
		logging.ErrorWithContext(logger, "job failed", "job_failure",
			logging.String("request_type", string(req.Type())),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.Duration("elapsed", time.Since(started)),
		)
		return protocol.Response{}, err
	}
	m.succeed(final)
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("request_type", string(req.Type())),
		logging.Duration("elapsed", time.Since(started)),
	)
	return final, nil
}

// exchange sends req and projects the stream onto m until the terminal
// response arrives.
func (c *Coordinator) exchange(ctx context.Context, kind engine.Kind, m *Machine, req protocol.Request) (protocol.Response, error) {
	h, err := c.handle(kind)
	if err != nil {
		return protocol.Response{}, err
	}
	stream, err := h.Send(ctx, req)
	if err != nil {
		return protocol.Response{}, err
	}

	ticker := newCyclicTicker(m, c.opts.InferenceTick)
	defer ticker.stop()

	var final protocol.Response
	var gotFinal bool
	for resp := range stream {
		if c.opts.Observe != nil {
			c.opts.Observe(kind, resp)
		}
		if resp.Terminal() {
			ticker.stop()
			final, gotFinal = resp, true
			continue
		}
		switch {
		case resp.Phase == protocol.PhaseProgress:
			m.update(resp.Message, resp.Progress, false)
			ticker.start()
		case resp.Progress != nil:
			m.update(label(resp), resp.Progress, false)
		default:
			m.update(label(resp), nil, kind == engine.KindMedia)
		}
	}
	if !gotFinal {
		return protocol.Response{}, services.Wrap(services.ErrExecutionFailed, string(kind), string(req.Type()), "response stream ended without a result", nil)
	}
	if final.Status == protocol.StatusError {
		if final.Err != nil {
			return protocol.Response{}, final.Err
		}
		return protocol.Response{}, services.Wrap(services.ErrExecutionFailed, string(kind), string(req.Type()), final.Message, nil)
	}
	return final, nil
}

func label(resp protocol.Response) string {
	if resp.File != "" {
		return resp.File
	}
	return resp.Message
}
