// Package api exposes document-generation sessions over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/pipeline"
	"github.com/sells-group/docforge/internal/review"
	"github.com/sells-group/docforge/internal/store"
	"github.com/sells-group/docforge/internal/upload"
)

// Server routes HTTP requests to the session service.
type Server struct {
	router    chi.Router
	svc       *pipeline.Service
	store     store.Store
	uploads   *upload.Reader
	maxUpload int64
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	MaxUploadMB    int
}

// NewServer builds the router.
func NewServer(svc *pipeline.Service, st store.Store, uploads *upload.Reader, opts Options) *Server {
	s := &Server{
		svc:       svc,
		store:     st,
		uploads:   uploads,
		maxUpload: int64(opts.MaxUploadMB) << 20,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 32 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleReset)
			r.Get("/review", s.handleReview)
			r.Get("/renders", s.handleRenders)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/verify", s.handleVerify)
			r.Post("/submit", s.handleSubmit)
		})
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var (
		req pipeline.StartRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = s.parseMultipartStart(r)
	} else {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.svc.Start(r.Context(), req)
	s.respondSession(w, http.StatusCreated, sess, err)
}

// parseMultipartStart reads the description, optional budget and template
// set, and every file under "files".
func (s *Server) parseMultipartStart(r *http.Request) (pipeline.StartRequest, error) {
	var req pipeline.StartRequest
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return req, eris.Wrap(err, "parse form")
	}
	req.Description = r.FormValue("description")
	req.TemplateSet = r.FormValue("template_set")
	if b := strings.TrimSpace(r.FormValue("budget")); b != "" {
		v, err := strconv.ParseFloat(b, 64)
		if err != nil {
			return req, eris.Wrap(err, "budget")
		}
		req.Budget = &v
	}

	var files []upload.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return req, eris.Wrapf(err, "open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return req, eris.Wrapf(err, "read %s", fh.Filename)
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data})
	}
	req.Sources, req.UploadErrors = s.uploads.ReadAll(r.Context(), files)
	return req, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{Stage: model.Stage(q.Get("stage"))}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	list, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	s.respondSession(w, http.StatusOK, sess, err)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	html, err := review.HTML(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRenders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.svc.Confirm(r.Context(), chi.URLParam(r, "id"), body.Title)
	s.respondSession(w, http.StatusOK, sess, err)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values model.Values `json:"values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.svc.Verify(r.Context(), chi.URLParam(r, "id"), body.Values)
	s.respondSession(w, http.StatusOK, sess, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Submit(r.Context(), chi.URLParam(r, "id"))
	s.respondSession(w, http.StatusOK, sess, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondSession writes the session, or the error together with the session
// state when one is available.
func (s *Server) respondSession(w http.ResponseWriter, status int, sess *model.Session, err error) {
	if err == nil {
		writeJSON(w, status, sess)
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]any{"error": err.Error(), "session": sess})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrWrongStage):
		return http.StatusConflict
	case pipeline.IsUserError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
