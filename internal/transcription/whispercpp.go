package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"mediadesk/internal/audio"
	"mediadesk/internal/logging"
	"mediadesk/internal/modelcache"
	"mediadesk/internal/protocol"
)

// ErrRecognizerClosed is returned by a recognizer used after Close.
var ErrRecognizerClosed = errors.New("recognizer closed")

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// WhisperCPPBuilder loads ggml models for the whisper.cpp command line tool.
type WhisperCPPBuilder struct {
	fetcher *modelcache.Fetcher
	binary  string
	workDir string
	logger  *slog.Logger
	run     CommandRunner
}

// NewWhisperCPPBuilder returns a builder that fetches weights with fetcher and
// runs binary with scratch files under workDir.
func NewWhisperCPPBuilder(fetcher *modelcache.Fetcher, binary, workDir string, logger *slog.Logger) *WhisperCPPBuilder {
	return &WhisperCPPBuilder{
		fetcher: fetcher,
		binary:  binary,
		workDir: workDir,
		logger:  logging.NewComponentLogger(logger, "whisper"),
	}
}

// WithCommandRunner replaces process execution, for tests.
func (b *WhisperCPPBuilder) WithCommandRunner(runner CommandRunner) {
	b.run = runner
}

// Build makes the weights for modelID available and returns a recognizer
// bound to them.
func (b *WhisperCPPBuilder) Build(ctx context.Context, modelID string, progress func(FileProgress)) (Recognizer, error) {
	entry, err := b.fetcher.Catalog().Resolve(modelID)
	if err != nil {
		return nil, err
	}

	binary := b.binary
	run := b.run
	if run == nil {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("%s not found: %w", binary, err)
		}
		binary = resolved
		run = runCommand
	}

	modelPath, err := b.fetcher.Ensure(ctx, entry, func(p modelcache.Progress) {
		if progress != nil {
			progress(FileProgress{File: p.File, Progress: p.Progress})
		}
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(b.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure work dir: %w", err)
	}
	dir, err := os.MkdirTemp(b.workDir, "whisper-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	b.logger.Debug("whisper model ready",
		logging.String("model", entry.Name),
		logging.String("path", modelPath),
		logging.String("scratch_dir", dir),
	)
	return &whisperRecognizer{
		binary: binary,
		model:  modelPath,
		dir:    dir,
		run:    run,
	}, nil
}

type whisperRecognizer struct {
	binary string
	model  string
	dir    string
	run    CommandRunner

	mu     sync.Mutex
	seq    int
	closed bool
}

func (r *whisperRecognizer) Recognize(ctx context.Context, window []float32, params DecodeParams) ([]protocol.Segment, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRecognizerClosed
	}
	r.seq++
	prefix := filepath.Join(r.dir, fmt.Sprintf("window_%04d", r.seq))
	r.mu.Unlock()

	wavPath := prefix + ".wav"
	jsonPath := prefix + ".json"
	defer func() {
		_ = os.Remove(wavPath)
		_ = os.Remove(jsonPath)
	}()

	f, err := os.Create(wavPath)
	if err != nil {
		return nil, fmt.Errorf("stage window: %w", err)
	}
	if err := audio.EncodeWAV(f, window, audio.TargetSampleRate); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("stage window: %w", err)
	}

	if err := r.run(ctx, r.binary, WhisperArgs(r.model, wavPath, prefix, params)...); err != nil {
		return nil, err
	}
	return loadSegments(jsonPath)
}

func (r *whisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return os.RemoveAll(r.dir)
}

// WhisperArgs builds the whisper-cli argument list for one window.
func WhisperArgs(model, wavPath, outPrefix string, params DecodeParams) []string {
	args := []string{
		"-m", model,
		"-f", wavPath,
		"-l", params.Language,
		"-oj",
		"-of", outPrefix,
		"-np",
		"-mc", strconv.Itoa(params.MaxContext),
		"-et", strconv.FormatFloat(params.EntropyThreshold, 'f', -1, 64),
	}
	if params.Task == "translate" {
		args = append(args, "-tr")
	}
	if !params.Timestamps {
		args = append(args, "-nt")
	}
	return args
}

type whisperPayload struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func loadSegments(path string) ([]protocol.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	segments := make([]protocol.Segment, 0, len(payload.Transcription))
	for _, item := range payload.Transcription {
		segments = append(segments, protocol.Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  item.Text,
		})
	}
	return segments, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail(strings.TrimSpace(string(output)), 2048))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
