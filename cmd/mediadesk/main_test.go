package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediadesk/internal/config"
	"mediadesk/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	inputDir   string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"

	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	inputDir := filepath.Join(base, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, inputDir: inputDir}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func weightServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ggml-base.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ggml weights"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestLogLevelOverrideIsValidated(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"--log-level", "chatty", "doctor"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestDoctor(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "ffmpeg version 7.1-stub")
	requireContains(t, out, "whisper.cpp")
	requireContains(t, out, "Ready")

	env.cfg.Media.FFmpegBinary = "mediadesk-missing-ffmpeg"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without ffmpeg")
	}
	requireContains(t, out, "missing")
}

func TestConvertSavesWithoutOverwriting(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.inputDir, "tone.wav")
	testsupport.ToneWAV(t, input, 1, 16000, 1)

	for i := 0; i < 2; i++ {
		out, _, err := runCLI(t, []string{"convert", "--format", "mp3", input}, env.configPath)
		if err != nil {
			t.Fatalf("convert #%d: %v", i+1, err)
		}
		requireContains(t, out, "audio/mpeg")
	}

	for _, name := range []string{"converted_tone.mp3", "converted_tone (1).mp3"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	if _, _, err := runCLI(t, []string{"convert", "--format", "flac", input}, env.configPath); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestExtractAudio(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.inputDir, "interview.mp4")
	testsupport.ToneWAV(t, input, 2, 16000, 1)

	out, _, err := runCLI(t, []string{"extract-audio", input}, env.configPath)
	if err != nil {
		t.Fatalf("extract-audio: %v", err)
	}
	requireContains(t, out, "Extracted 2.0s")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "interview_16k.wav")); err != nil {
		t.Fatalf("expected extracted wav: %v", err)
	}
	scratch, _ := filepath.Glob(filepath.Join(env.cfg.Paths.WorkDir, "extract-*.wav"))
	if len(scratch) != 0 {
		t.Fatalf("scratch files left behind: %v", scratch)
	}
}

func TestTranscribeWAVAndModels(t *testing.T) {
	server := weightServer(t)
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(server.URL))
	input := filepath.Join(env.inputDir, "tone.wav")
	testsupport.ToneWAV(t, input, 10, 16000, 1)

	out, _, err := runCLI(t, []string{"transcribe", "--format", "srt", "--model", "balanced", input}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "00:00:04,000 --> 00:00:09,800")
	requireContains(t, out, "questa è una prova")

	out, _, err = runCLI(t, []string{"models", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("models list: %v", err)
	}
	var rows []modelRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode models: %v\n%s", err, out)
	}
	cached := map[string]bool{}
	for _, r := range rows {
		cached[r.ID] = r.Cached
	}
	if !cached["base"] || cached["tiny"] {
		t.Fatalf("unexpected cache flags %v", cached)
	}

	out, _, err = runCLI(t, []string{"models", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("models list table: %v", err)
	}
	requireContains(t, out, "balanced")
}

func TestTranscribeMediaSaves(t *testing.T) {
	server := weightServer(t)
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(server.URL))
	input := filepath.Join(env.inputDir, "lezione.mp4")
	testsupport.ToneWAV(t, input, 10, 16000, 1)

	out, _, err := runCLI(t, []string{"transcribe", "--save", input}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "Saved ")

	matches, _ := filepath.Glob(filepath.Join(env.cfg.Paths.OutputDir, "transcript_*.txt"))
	if len(matches) != 1 {
		t.Fatalf("expected one transcript, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(data), "ciao a tutti questa è una prova")
}

func TestModelsPull(t *testing.T) {
	server := weightServer(t)
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(server.URL))

	out, _, err := runCLI(t, []string{"models", "pull", "Xenova/whisper-base"}, env.configPath)
	if err != nil {
		t.Fatalf("models pull: %v", err)
	}
	requireContains(t, out, "Model base ready")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ModelDir, "ggml-base.bin")); err != nil {
		t.Fatalf("expected weights on disk: %v", err)
	}

	if _, _, err := runCLI(t, []string{"models", "pull", "gigantic"}, env.configPath); err == nil {
		t.Fatal("expected unknown model error")
	}
}
