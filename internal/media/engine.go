package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"mediadesk/internal/logging"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
	"mediadesk/internal/textutil"
)

// MaxInputBytes is the hard ceiling on input size.
const MaxInputBytes int64 = 2 << 30

const engineName = "media"

const initHint = "the media engine could not start; check that ffmpeg is installed and runnable, or set media.ffmpeg_binary"

// Engine serves Convert and ExtractAudio requests. It implements
// engine.Executor.
type Engine struct {
	load     Loader
	maxBytes int64
	logger   *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	runtime Runtime
	closed  bool
}

// NewEngine builds an engine that loads its runtime with load on first use.
// maxBytes is clamped to MaxInputBytes; zero selects the ceiling.
func NewEngine(load Loader, maxBytes int64, logger *slog.Logger) *Engine {
	if maxBytes <= 0 || maxBytes > MaxInputBytes {
		maxBytes = MaxInputBytes
	}
	return &Engine{
		load:     load,
		maxBytes: maxBytes,
		logger:   logging.NewComponentLogger(logger, "media"),
	}
}

// Execute dispatches one request.
func (e *Engine) Execute(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error) {
	switch r := req.(type) {
	case protocol.Convert:
		return e.convert(ctx, r, emit)
	case protocol.ExtractAudio:
		return e.extractAudio(ctx, r, emit)
	case protocol.Transcribe:
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, engineName, string(r.Type()), "request not supported by media engine", nil)
	default:
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, engineName, "dispatch", fmt.Sprintf("unknown request %T", req), nil)
	}
}

func (e *Engine) convert(ctx context.Context, req protocol.Convert, emit func(protocol.Response)) (protocol.Response, error) {
	const op = "convert"
	if err := e.checkInput(req.File, op); err != nil {
		return protocol.Response{}, err
	}
	output := "output." + string(req.Format)
	if _, ok := ConvertArgs(req.Format, "", output); !ok {
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, engineName, op, fmt.Sprintf("unsupported target format %q", req.Format), nil)
	}

	data, err := e.runJob(ctx, op, req.File, output, "converting to "+strings.ToUpper(string(req.Format)), emit,
		func(input string) []string {
			args, _ := ConvertArgs(req.Format, input, output)
			return args
		})
	if err != nil {
		return protocol.Response{}, err
	}
	name := OutputName(req.File.Name(), req.Format)
	return protocol.SuccessOutput(protocol.NewBytesBlob(name, req.Format.MediaType(), data)), nil
}

func (e *Engine) extractAudio(ctx context.Context, req protocol.ExtractAudio, emit func(protocol.Response)) (protocol.Response, error) {
	const op = "extract audio"
	if err := e.checkInput(req.File, op); err != nil {
		return protocol.Response{}, err
	}

	data, err := e.runJob(ctx, op, req.File, extractOutput, "preparing audio", emit,
		func(input string) []string { return ExtractArgs(input, extractOutput) })
	if err != nil {
		return protocol.Response{}, err
	}
	name := stem(req.File.Name()) + "_16k.wav"
	return protocol.SuccessOutput(protocol.NewBytesBlob(name, protocol.FormatWAV.MediaType(), data)), nil
}

func (e *Engine) checkInput(file protocol.Blob, op string) error {
	if file == nil {
		return services.Wrap(services.ErrExecutionFailed, engineName, op, "no input file", nil)
	}
	if file.Size() > e.maxBytes {
		return services.Wrap(services.ErrInputTooLarge, engineName, op,
			fmt.Sprintf("%s is %d bytes; the limit is %d bytes", file.Name(), file.Size(), e.maxBytes), nil)
	}
	return nil
}

// runJob performs the shared write, exec, read sequence. The input and output
// entries are removed whether or not the job succeeds.
func (e *Engine) runJob(ctx context.Context, op string, file protocol.Blob, output, execMessage string, emit func(protocol.Response), args func(input string) []string) ([]byte, error) {
	emit(protocol.Loading("starting engine"))
	rt, err := e.ensureRuntime(ctx)
	if err != nil {
		return nil, err
	}

	emit(protocol.Loading("loading file"))
	input := "input_" + textutil.EngineFileName(file.Name())
	defer e.cleanup(ctx, rt, input, output)

	src, err := file.Open()
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, engineName, op, "read input", err)
	}
	err = rt.WriteFile(input, src)
	_ = src.Close()
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, engineName, op, "stage input", err)
	}

	emit(protocol.Loading(execMessage))
	if err := rt.Exec(ctx, args(input)); err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, engineName, op, "", err)
	}

	data, err := rt.ReadFile(output)
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, engineName, op, "read output", err)
	}
	return data, nil
}

func (e *Engine) cleanup(ctx context.Context, rt Runtime, names ...string) {
	for _, name := range names {
		if err := rt.DeleteFile(name); err != nil {
			logging.WithContext(ctx, e.logger).Warn("engine file cleanup failed",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove stale files from the work directory"),
			)
		}
	}
}

// ensureRuntime returns the resident runtime, loading it on first use.
// Concurrent callers share one in-flight load. A failed load is not cached.
func (e *Engine) ensureRuntime(ctx context.Context) (Runtime, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, services.Wrap(services.ErrEngineTerminated, engineName, "init", "engine closed", nil)
	}
	if e.runtime != nil {
		rt := e.runtime
		e.mu.Unlock()
		return rt, nil
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do("runtime", func() (any, error) {
		e.mu.Lock()
		if e.runtime != nil {
			rt := e.runtime
			e.mu.Unlock()
			return rt, nil
		}
		e.mu.Unlock()

		logger := logging.WithContext(ctx, e.logger)
		logger.Info("loading media engine", logging.String(logging.FieldEventType, "engine_init"))
		rt, err := e.load(ctx)
		if err != nil {
			wrapped := services.Wrap(services.ErrEngineInitFailed, engineName, "init", initHint, err)
			logging.ErrorWithContext(logger, "media engine failed to start", "engine_init_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, initHint),
			)
			return nil, wrapped
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			_ = rt.Close()
			return nil, services.Wrap(services.ErrEngineTerminated, engineName, "init", "engine closed during init", nil)
		}
		e.runtime = rt
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Runtime), nil
}

// Loaded reports whether a runtime is resident.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime != nil
}

// Close releases the runtime. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	rt := e.runtime
	e.runtime = nil
	e.closed = true
	e.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close()
}

// OutputName names a converted file: converted_<stem>.<format>.
func OutputName(inputName string, format protocol.Format) string {
	return "converted_" + stem(inputName) + "." + string(format)
}

func stem(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return "file"
	}
	s := strings.TrimSuffix(base, filepath.Ext(base))
	s = textutil.SanitizeFileName(s)
	if s == "" {
		return "file"
	}
	return s
}
