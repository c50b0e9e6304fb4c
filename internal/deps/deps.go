package deps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediadesk/internal/config"
)

const versionCheckTimeout = 10 * time.Second

// Requirement defines an external dependency mediadesk relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// VersionArg, when set, is passed to the binary to read its version line.
	VersionArg string
	Optional   bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Version     string
	Detail      string
}

// Requirements lists the binaries the engines execute.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Media.FFmpegBinary,
			Description: "Media engine for conversion and audio extraction",
			VersionArg:  "-version",
		},
		{
			Name:        "whisper.cpp",
			Command:     cfg.Transcription.WhisperBinary,
			Description: "Speech recognition for transcription",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = path
		status.Available = true
		if req.VersionArg != "" {
			status.Version = readVersion(ctx, path, req.VersionArg)
		}
		results = append(results, status)
	}
	return results
}

// readVersion returns the first non-empty output line, or "" when the
// binary cannot be run.
func readVersion(ctx context.Context, path, arg string) string {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()
	out, _ := exec.CommandContext(ctx, path, arg).CombinedOutput() //nolint:gosec
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// CheckWritableDir reports whether path is an existing directory the current
// user can create files in.
func CheckWritableDir(name, path string) Status {
	status := Status{Name: name, Command: path, Description: "Directory must exist and be writable", Path: path}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		status.Detail = "directory does not exist"
		return status
	case err != nil:
		status.Detail = err.Error()
		return status
	case !info.IsDir():
		status.Detail = "not a directory"
		return status
	}
	if err := unix.Access(path, unix.W_OK|unix.X_OK); err != nil {
		status.Detail = fmt.Sprintf("not writable: %v", err)
		return status
	}
	status.Available = true
	return status
}

// CheckDirectories checks every directory mediadesk writes into.
func CheckDirectories(cfg *config.Config) []Status {
	return []Status{
		CheckWritableDir("Work directory", cfg.Paths.WorkDir),
		CheckWritableDir("Output directory", cfg.Paths.OutputDir),
		CheckWritableDir("Model directory", cfg.Paths.ModelDir),
		CheckWritableDir("Log directory", cfg.Paths.LogDir),
	}
}

// Ready reports whether every non-optional status is available.
func Ready(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			return false
		}
	}
	return true
}
