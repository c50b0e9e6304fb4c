package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Runtime is one transcoding engine instance with a private working area.
// File names are relative to that area.
type Runtime interface {
	WriteFile(name string, r io.Reader) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	Exec(ctx context.Context, args []string) error
	Close() error
}

// Loader constructs a Runtime.
type Loader func(ctx context.Context) (Runtime, error)

// ErrBinaryUnavailable is returned by LoadFFmpeg when ffmpeg cannot be run.
var ErrBinaryUnavailable = errors.New("ffmpeg binary unavailable")

const stderrLimit = 4096

// ffmpegRuntime executes ffmpeg inside a private temp directory.
type ffmpegRuntime struct {
	binary string
	dir    string
}

// LoadFFmpeg returns a Loader that resolves binary, checks it with -version,
// and creates a private working directory under workDir.
func LoadFFmpeg(binary, workDir string) Loader {
	return func(ctx context.Context) (Runtime, error) {
		binary = strings.TrimSpace(binary)
		if binary == "" {
			binary = "ffmpeg"
		}
		resolved, err := exec.LookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBinaryUnavailable, err)
		}

		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if out, err := exec.CommandContext(checkCtx, resolved, "-hide_banner", "-version").CombinedOutput(); err != nil {
			return nil, fmt.Errorf("%w: check %s: %w: %s", ErrBinaryUnavailable, resolved, err, tail(out))
		}

		if workDir != "" {
			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return nil, fmt.Errorf("create work dir: %w", err)
			}
		}
		dir, err := os.MkdirTemp(workDir, "media-engine-")
		if err != nil {
			return nil, fmt.Errorf("create engine dir: %w", err)
		}
		return &ffmpegRuntime{binary: resolved, dir: dir}, nil
	}
}

func (r *ffmpegRuntime) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid engine file name %q", name)
	}
	return filepath.Join(r.dir, name), nil
}

func (r *ffmpegRuntime) WriteFile(name string, src io.Reader) error {
	target, err := r.path(name)
	if err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func (r *ffmpegRuntime) ReadFile(name string) ([]byte, error) {
	target, err := r.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

func (r *ffmpegRuntime) DeleteFile(name string) error {
	target, err := r.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exec runs ffmpeg in its own process group so cancellation kills any
// children it spawned as well.
func (r *ffmpegRuntime) Exec(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.Bytes()))
	}
	return nil
}

func (r *ffmpegRuntime) Close() error {
	return os.RemoveAll(r.dir)
}

func tail(out []byte) string {
	text := strings.TrimSpace(string(out))
	if len(text) > stderrLimit {
		text = "..." + text[len(text)-stderrLimit:]
	}
	return text
}
