package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mediadesk/internal/audio"
	"mediadesk/internal/logging"
	"mediadesk/internal/modelcache"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
)

const engineName = "transcription"

// Loading messages emitted by Execute. Observers key on these rather than on
// the File detail.
const (
	MessageSwitchingModel   = "switching model"
	MessageDownloadingModel = "downloading model"
	MessageTranscribing     = "transcribing"
)

// FileProgress reports preparation progress for one model file.
type FileProgress struct {
	File     string
	Progress float64
}

// Recognizer is one loaded speech model. Segment times are relative to the
// start of window.
type Recognizer interface {
	Recognize(ctx context.Context, window []float32, params DecodeParams) ([]protocol.Segment, error)
	Close() error
}

// Builder loads recognizers for canonical model ids.
type Builder interface {
	Build(ctx context.Context, modelID string, progress func(FileProgress)) (Recognizer, error)
}

type cacheEntry struct {
	modelID    string
	recognizer Recognizer
}

// Engine serves Transcribe requests. It implements engine.Executor.
type Engine struct {
	builder      Builder
	catalog      *modelcache.Catalog
	defaultModel string
	params       DecodeParams
	logger       *slog.Logger

	mu     sync.Mutex
	entry  *cacheEntry
	closed bool
}

// NewEngine builds an engine that resolves ids through catalog and loads
// recognizers with builder. defaultModel serves requests without a model id.
func NewEngine(builder Builder, catalog *modelcache.Catalog, defaultModel string, logger *slog.Logger) *Engine {
	return &Engine{
		builder:      builder,
		catalog:      catalog,
		defaultModel: defaultModel,
		params:       DefaultParams,
		logger:       logging.NewComponentLogger(logger, "transcription"),
	}
}

// Execute dispatches one request.
func (e *Engine) Execute(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error) {
	switch r := req.(type) {
	case protocol.Transcribe:
		return e.transcribe(ctx, r, emit)
	case protocol.Convert, protocol.ExtractAudio:
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, engineName, string(r.Type()), "request not supported by transcription engine", nil)
	default:
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, engineName, "dispatch", fmt.Sprintf("unknown request %T", req), nil)
	}
}

func (e *Engine) transcribe(ctx context.Context, req protocol.Transcribe, emit func(protocol.Response)) (protocol.Response, error) {
	requested := req.ModelID
	if requested == "" {
		requested = e.defaultModel
	}
	entry, err := e.catalog.Resolve(requested)
	if err != nil {
		return protocol.Response{}, services.Wrap(services.ErrModelLoadFailed, engineName, "resolve model", "", err)
	}

	rec, err := e.ensureModel(ctx, entry.Name, emit)
	if err != nil {
		return protocol.Response{}, err
	}

	started := protocol.LoadingProgress(MessageTranscribing, "", 0)
	started.Phase = protocol.PhaseProgress
	emit(started)

	logger := logging.WithContext(ctx, e.logger)
	logger.Info("transcription started",
		logging.String(logging.FieldEventType, "inference_start"),
		logging.String("model", entry.Name),
		logging.Float64("audio_seconds", audio.Duration(req.Samples)),
	)
	segments, err := recognizeWindows(ctx, rec, req.Samples, audio.TargetSampleRate, e.params)
	if err != nil {
		logging.ErrorWithContext(logger, "transcription failed", "inference_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry, or pick a smaller model"),
		)
		return protocol.Response{}, services.Wrap(services.ErrInferenceFailed, engineName, "transcribe", "", err)
	}
	logger.Info("transcription finished",
		logging.String(logging.FieldEventType, "inference_complete"),
		logging.Int("segments", len(segments)),
	)
	return protocol.SuccessTranscript(joinText(segments), segments), nil
}

// ensureModel returns the resident recognizer for modelID, replacing any
// other resident model first.
func (e *Engine) ensureModel(ctx context.Context, modelID string, emit func(protocol.Response)) (Recognizer, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, services.Wrap(services.ErrEngineTerminated, engineName, "load model", "engine closed", nil)
	}
	if e.entry != nil && e.entry.modelID == modelID {
		rec := e.entry.recognizer
		e.mu.Unlock()
		return rec, nil
	}
	old := e.entry
	e.entry = nil
	e.mu.Unlock()

	logger := logging.WithContext(ctx, e.logger)
	emit(protocol.LoadingProgress(MessageSwitchingModel, MessageSwitchingModel+": "+modelID, 0))
	if old != nil {
		logger.Info("releasing model",
			logging.String(logging.FieldEventType, "model_release"),
			logging.String("model", old.modelID),
		)
		if err := old.recognizer.Close(); err != nil {
			logger.Warn("model release failed",
				logging.String("model", old.modelID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "model_release_failed"),
				logging.String(logging.FieldErrorHint, "remove stale files from the work directory"),
			)
		}
	}

	logger.Info("loading model",
		logging.String(logging.FieldEventType, "model_load"),
		logging.String("model", modelID),
	)
	rec, err := e.builder.Build(ctx, modelID, func(p FileProgress) {
		emit(protocol.LoadingProgress(MessageDownloadingModel, p.File, p.Progress))
	})
	if err != nil {
		logging.ErrorWithContext(logger, "model load failed", "model_load_failed",
			logging.String("model", modelID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access to the model catalog and free space in the model directory"),
		)
		return nil, services.Wrap(services.ErrModelLoadFailed, engineName, "load model", modelID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = rec.Close()
		return nil, services.Wrap(services.ErrEngineTerminated, engineName, "load model", "engine closed during load", nil)
	}
	e.entry = &cacheEntry{modelID: modelID, recognizer: rec}
	return rec, nil
}

// ResidentModel returns the canonical id of the loaded model, if any.
func (e *Engine) ResidentModel() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entry == nil {
		return "", false
	}
	return e.entry.modelID, true
}

// Close drops the resident model. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	old := e.entry
	e.entry = nil
	e.closed = true
	e.mu.Unlock()
	if old == nil {
		return nil
	}
	return old.recognizer.Close()
}
