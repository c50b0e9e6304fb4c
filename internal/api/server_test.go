package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mediadesk/internal/api"
	"mediadesk/internal/coordinator"
	"mediadesk/internal/engine"
	"mediadesk/internal/logging"
	"mediadesk/internal/modelcache"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
	"mediadesk/internal/testsupport"
)

type executorFunc func(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error)

func (f executorFunc) Execute(ctx context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error) {
	return f(ctx, req, emit)
}

func (f executorFunc) Close() error { return nil }

func factory(fn executorFunc) engine.Factory {
	return func() engine.Executor { return fn }
}

// echoMedia converts by returning the uploaded bytes and extracts by
// returning wav.
func echoMedia(wav []byte, gate <-chan struct{}) executorFunc {
	return func(_ context.Context, req protocol.Request, emit func(protocol.Response)) (protocol.Response, error) {
		if gate != nil {
			<-gate
		}
		switch r := req.(type) {
		case protocol.Convert:
			emit(protocol.Loading("converting to " + strings.ToUpper(r.Format.String())))
			data, err := protocol.ReadAll(r.File)
			if err != nil {
				return protocol.Response{}, err
			}
			name := "converted_" + strings.TrimSuffix(r.File.Name(), filepath.Ext(r.File.Name())) + "." + r.Format.String()
			return protocol.SuccessOutput(protocol.NewBytesBlob(name, r.Format.MediaType(), data)), nil
		case protocol.ExtractAudio:
			return protocol.SuccessOutput(protocol.NewBytesBlob("clip_16k.wav", "audio/wav", wav)), nil
		}
		return protocol.Response{}, services.Wrap(services.ErrUnsupportedFormat, "media", "dispatch", "unexpected request", nil)
	}
}

func fakeTranscriber(_ context.Context, req protocol.Request, _ func(protocol.Response)) (protocol.Response, error) {
	samples := req.(protocol.Transcribe).Samples
	end := float64(len(samples)) / 16000
	return protocol.SuccessTranscript("ciao a tutti", []protocol.Segment{{Start: 0, End: end, Text: "ciao a tutti"}}), nil
}

type fixture struct {
	server  *httptest.Server
	coord   *coordinator.Coordinator
	metrics *api.Metrics
}

func newFixture(t *testing.T, media, transcription engine.Factory, origins ...string) *fixture {
	t.Helper()
	metrics := api.NewMetrics("mediadesk")
	coord := coordinator.New(coordinator.Options{
		Media:         media,
		Transcription: transcription,
		InferenceTick: 10 * time.Millisecond,
		Observe:       metrics.Observe,
		Logger:        logging.NewNop(),
	})
	srv := api.NewServer(api.Options{
		Coordinator:    coord,
		Metrics:        metrics,
		Catalog:        modelcache.NewCatalog("https://example.invalid/models"),
		AllowedOrigins: origins,
		Logger:         logging.NewNop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = coord.Close()
	})
	return &fixture{server: ts, coord: coord, metrics: metrics}
}

func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	testsupport.ToneWAV(t, path, seconds, 16000, 1)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func upload(t *testing.T, url, name string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(content)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error, body.Kind
}

func TestConvertEndpoint(t *testing.T) {
	f := newFixture(t, factory(echoMedia(nil, nil)), nil)

	resp := upload(t, f.server.URL+"/v1/convert?format=MP3", "clip.mp4", []byte("fake video"))
	if resp.StatusCode != http.StatusOK {
		msg, _ := decodeError(t, resp)
		t.Fatalf("status = %d: %s", resp.StatusCode, msg)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=converted_clip.mp3` {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "fake video" {
		t.Fatalf("body = %q", body)
	}

	status, err := http.Get(f.server.URL + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer status.Body.Close()
	var payload struct {
		Busy    bool                   `json:"busy"`
		Engines []coordinator.JobState `json:"engines"`
	}
	if err := json.NewDecoder(status.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Busy || len(payload.Engines) != 2 {
		t.Fatalf("unexpected status %+v", payload)
	}
	if payload.Engines[0].Engine != engine.KindMedia || payload.Engines[0].Status != coordinator.StatusSuccess || payload.Engines[0].Progress != 100 {
		t.Fatalf("unexpected media state %+v", payload.Engines[0])
	}

	metrics, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metrics.Body.Close()
	text, _ := io.ReadAll(metrics.Body)
	if !strings.Contains(string(text), `mediadesk_jobs_total{engine="media",outcome="success"} 1`) {
		t.Fatalf("metrics missing job counter:\n%s", text)
	}
}

func TestConvertRejectsBadRequests(t *testing.T) {
	f := newFixture(t, factory(echoMedia(nil, nil)), nil)

	resp := upload(t, f.server.URL+"/v1/convert?format=flac", "clip.mp4", []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", resp.StatusCode)
	}
	if _, kind := decodeError(t, resp); kind != "unsupported_format" {
		t.Fatalf("kind = %q", kind)
	}

	resp = upload(t, f.server.URL+"/v1/convert?format=mp3", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}
}

func TestBusyEngineReturnsConflict(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, factory(echoMedia(nil, gate)), nil)

	first := make(chan int, 1)
	go func() {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, _ := mw.CreateFormFile("file", "a.wav")
		_, _ = part.Write([]byte("a"))
		_ = mw.Close()
		resp, err := http.Post(f.server.URL+"/v1/convert?format=mp3", mw.FormDataContentType(), &body)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !f.coord.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first conversion never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := upload(t, f.server.URL+"/v1/convert?format=wav", "b.wav", []byte("b"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy status = %d", resp.StatusCode)
	}
	if _, kind := decodeError(t, resp); kind != "engine_busy" {
		t.Fatalf("kind = %q", kind)
	}

	close(gate)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first conversion status = %d", code)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	f := newFixture(t, factory(echoMedia(toneWAV(t, 3), nil)), factory(fakeTranscriber))

	resp := upload(t, f.server.URL+"/v1/transcribe?model=balanced", "intervista.mp4", []byte("video"))
	if resp.StatusCode != http.StatusOK {
		msg, _ := decodeError(t, resp)
		t.Fatalf("status = %d: %s", resp.StatusCode, msg)
	}
	var transcript coordinator.Transcript
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		t.Fatal(err)
	}
	if transcript.Text != "ciao a tutti" || len(transcript.Segments) != 1 || transcript.Segments[0].End != 3 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}

	resp = upload(t, f.server.URL+"/v1/transcribe?format=srt", "intervista.mp4", []byte("video"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("srt status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-subrip" {
		t.Fatalf("srt Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "transcript_") || !strings.HasSuffix(cd, ".srt") {
		t.Fatalf("srt Content-Disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "1\n00:00:00,000 --> 00:00:03,000\nciao a tutti\n" {
		t.Fatalf("srt body = %q", body)
	}

	resp = upload(t, f.server.URL+"/v1/transcribe?format=vtt", "intervista.mp4", []byte("video"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("vtt status = %d", resp.StatusCode)
	}
}

func TestTranscribeDecodeFailure(t *testing.T) {
	f := newFixture(t, factory(echoMedia([]byte("garbage"), nil)), factory(fakeTranscriber))

	resp := upload(t, f.server.URL+"/v1/transcribe", "broken.mp4", []byte("video"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, kind := decodeError(t, resp); kind != "decode_failed" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestResetAndModels(t *testing.T) {
	f := newFixture(t, factory(echoMedia(nil, nil)), nil)
	upload(t, f.server.URL+"/v1/convert?format=mp3", "clip.wav", []byte("x"))

	resp, err := http.Post(f.server.URL+"/v1/engines/media/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || f.coord.State(engine.KindMedia).Status != coordinator.StatusIdle {
		t.Fatalf("reset status = %d, state %+v", resp.StatusCode, f.coord.State(engine.KindMedia))
	}

	resp, err = http.Post(f.server.URL+"/v1/engines/gpu/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown engine status = %d", resp.StatusCode)
	}

	resp, err = http.Get(f.server.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var models []struct {
		ID   string `json:"id"`
		Tier string `json:"tier"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		t.Fatal(err)
	}
	var sawBase bool
	for _, m := range models {
		if m.ID == "base" {
			sawBase = m.Tier == "balanced" && m.URL == "https://example.invalid/models/ggml-base.bin"
		}
	}
	if !sawBase {
		t.Fatalf("base model missing or wrong: %+v", models)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, factory(echoMedia(nil, nil)), nil)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() coordinator.JobState {
		t.Helper()
		var s coordinator.JobState
		if err := conn.ReadJSON(&s); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return s
	}
	if s := read(); s.Engine != engine.KindMedia || s.Status != coordinator.StatusIdle {
		t.Fatalf("first snapshot %+v", s)
	}
	if s := read(); s.Engine != engine.KindTranscription || s.Status != coordinator.StatusIdle {
		t.Fatalf("second snapshot %+v", s)
	}

	upload(t, f.server.URL+"/v1/convert?format=mp3", "clip.wav", []byte("x"))

	var sawLoading bool
	for {
		s := read()
		if s.Status == coordinator.StatusLoading {
			sawLoading = true
			continue
		}
		if s.Status != coordinator.StatusSuccess || s.Engine != engine.KindMedia {
			t.Fatalf("unexpected event %+v", s)
		}
		break
	}
	if !sawLoading {
		t.Fatal("no loading event streamed")
	}
}

func requestWithOrigin(t *testing.T, method, url, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCrossOriginRejectedByDefault(t *testing.T) {
	f := newFixture(t, factory(echoMedia(nil, nil)), nil)

	resp := requestWithOrigin(t, http.MethodPost, f.server.URL+"/v1/convert?format=mp3", "http://evil.example")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
	if f.coord.State(engine.KindMedia).Status != coordinator.StatusIdle {
		t.Fatal("rejected request reached the media engine")
	}

	resp = requestWithOrigin(t, http.MethodGet, f.server.URL+"/v1/status", f.server.URL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("same-origin status = %d", resp.StatusCode)
	}
	resp = requestWithOrigin(t, http.MethodGet, f.server.URL+"/v1/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("no-origin status = %d", resp.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		conn.Close()
		t.Fatal("foreign origin opened an event stream")
	}
	if wsResp == nil || wsResp.StatusCode != http.StatusForbidden {
		t.Fatalf("websocket handshake response = %+v", wsResp)
	}
}

func TestAllowedOriginReachesAPIAndEvents(t *testing.T) {
	const origin = "http://localhost:3000"
	f := newFixture(t, factory(echoMedia(nil, nil)), nil, origin)

	resp := requestWithOrigin(t, http.MethodGet, f.server.URL+"/v1/status", origin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allowed origin status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}

	resp = requestWithOrigin(t, http.MethodGet, f.server.URL+"/v1/status", "http://evil.example")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin status = %d", resp.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events"
	if _, wsResp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}}); err == nil || wsResp == nil || wsResp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign websocket dial: err=%v resp=%+v", err, wsResp)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
	if err != nil {
		t.Fatalf("allowed websocket dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var s coordinator.JobState
	if err := conn.ReadJSON(&s); err != nil || s.Engine != engine.KindMedia {
		t.Fatalf("first frame %+v, err %v", s, err)
	}
}
