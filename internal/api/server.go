package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mediadesk/internal/coordinator"
	"mediadesk/internal/engine"
	"mediadesk/internal/logging"
	"mediadesk/internal/media"
	"mediadesk/internal/modelcache"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
	"mediadesk/internal/subtitles"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// Options wires a Server.
type Options struct {
	Coordinator *coordinator.Coordinator
	Metrics     *Metrics
	// Catalog backs GET /v1/models; nil disables the route.
	Catalog *modelcache.Catalog
	// MaxUploadBytes bounds request bodies. Zero selects media.MaxInputBytes.
	MaxUploadBytes int64
	// AllowedOrigins lists browser origins permitted to call the API and
	// open event streams. Empty allows same-origin and non-browser clients
	// only.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the HTTP surface of the coordinator.
type Server struct {
	coord     *coordinator.Coordinator
	metrics   *Metrics
	catalog   *modelcache.Catalog
	maxUpload int64
	origins   []string
	logger    *slog.Logger
	events    *eventHub

	listener net.Listener
	server   *http.Server
}

// NewServer builds a server around opts.Coordinator.
func NewServer(opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = media.MaxInputBytes
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics("")
	}
	logger := logging.NewComponentLogger(opts.Logger, "api")
	return &Server{
		coord:     opts.Coordinator,
		metrics:   metrics,
		catalog:   opts.Catalog,
		maxUpload: maxUpload,
		origins:   opts.AllowedOrigins,
		logger:    logger,
		events:    newEventHub(opts.Coordinator, metrics, opts.AllowedOrigins, logger),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.origins)))
	r.Use(s.countRequests)
	r.Use(s.rejectForeignOrigins)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/convert", s.handleConvert)
		r.Post("/transcribe", s.handleTranscribe)
		r.Get("/status", s.handleStatus)
		r.Post("/engines/{engine}/reset", s.handleReset)
		r.Get("/events", s.events.serve)
		if s.catalog != nil {
			r.Get("/models", s.handleModels)
		}
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Start listens on bind and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listen"),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.events.close()
}

// requestContext copies chi's request id into the services context so engine
// logs carry it as correlation_id.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

// readUpload parses the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (protocol.Blob, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeFailure(s.logger, w, services.Wrap(services.ErrInputTooLarge, "api", "upload", fmt.Sprintf("request body exceeds %d bytes", s.maxUpload), nil))
		} else {
			writeError(s.logger, w, http.StatusBadRequest, "expected a multipart form with a file field")
		}
		return nil, nil, false
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		cleanup()
		writeError(s.logger, w, http.StatusBadRequest, "missing file field")
		return nil, nil, false
	}
	return uploadBlob{header: files[0]}, cleanup, true
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format, err := protocol.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	file, cleanup, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.coord.Convert(r.Context(), file, format)
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	writeAttachment(w, out.Name(), out.MediaType(), out.Bytes())
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	exportFormat := subtitles.ExportJSON
	if raw := strings.TrimSpace(query.Get("format")); raw != "" {
		parsed, err := subtitles.ParseExportFormat(raw)
		if err != nil {
			writeFailure(s.logger, w, services.Wrap(services.ErrUnsupportedFormat, "api", "transcribe", err.Error(), nil))
			return
		}
		exportFormat = parsed
	}
	file, cleanup, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	transcript, err := s.coord.TranscribeMedia(r.Context(), file, query.Get("model"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	if exportFormat == subtitles.ExportJSON {
		writeJSON(s.logger, w, http.StatusOK, transcript)
		return
	}
	body, err := subtitles.Render(exportFormat, transcript.Text, transcript.Segments)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, subtitles.TranscriptFileName(time.Now(), exportFormat), exportFormat.MediaType(), body)
}

type statusResponse struct {
	Busy    bool                   `json:"busy"`
	Engines []coordinator.JobState `json:"engines"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, statusResponse{Busy: s.coord.Busy(), Engines: s.coord.States()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	kind := engine.Kind(chi.URLParam(r, "engine"))
	if kind != engine.KindMedia && kind != engine.KindTranscription {
		writeError(s.logger, w, http.StatusNotFound, "unknown engine")
		return
	}
	if err := s.coord.Reset(kind); err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, s.coord.State(kind))
}

type modelView struct {
	ID   string `json:"id"`
	File string `json:"file"`
	Size string `json:"size"`
	Tier string `json:"tier,omitempty"`
	URL  string `json:"url"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	entries := s.catalog.Entries()
	views := make([]modelView, 0, len(entries))
	for _, e := range entries {
		views = append(views, modelView{ID: e.Name, File: e.FileName, Size: e.SizeLabel, Tier: e.Tier, URL: s.catalog.URL(e)})
	}
	writeJSON(s.logger, w, http.StatusOK, views)
}

func writeAttachment(w http.ResponseWriter, name, mediaType string, body []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
