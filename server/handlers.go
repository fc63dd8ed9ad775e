package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sweetpotato0/sensei/course"
	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/rag/pipeline"
	"github.com/sweetpotato0/sensei/rag/ranker"
	"github.com/sweetpotato0/sensei/rag/source"
)

// DefaultSearchTopK is used when a search request omits top_k.
const DefaultSearchTopK = 5

type generateRequest struct {
	Question string `json:"question" validate:"required"`
	Course   string `json:"course"`
	InDB     *bool  `json:"indb"`
	Internet bool   `json:"internet"`
	TopN     *int   `json:"top_n"`
}

func (g generateRequest) pipelineRequest() pipeline.Request {
	req := pipeline.NewRequest(g.Question, g.Course)
	if g.InDB != nil {
		req.UseInternal = *g.InDB
	}
	req.UseExternal = g.Internet
	if g.TopN != nil {
		req.TopN = *g.TopN
	}
	return req
}

// streamLine is one NDJSON line of /generate_answer.
type streamLine struct {
	Context  *ranker.Set `json:"context,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Token    string      `json:"token,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type evaluateRequest struct {
	Question string           `json:"question" validate:"required"`
	Answer   string           `json:"answer"`
	Contexts []source.Context `json:"contexts"`
	Course   string           `json:"course"`
}

type searchRequest struct {
	CourseName string `json:"course_name" validate:"required"`
	Text       string `json:"text" validate:"required"`
	TopK       int    `json:"top_k" validate:"gte=0"`
}

type searchResponse struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
	Links     []string         `json:"links"`
}

type createCourseRequest struct {
	CourseName  string `json:"course_name" validate:"required"`
	PlaylistURL string `json:"playlist_url" validate:"omitempty,url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateAnswer(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ans, err := s.pipeline.Answer(r.Context(), req.pipelineRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	emit := func(line streamLine) bool {
		if err := enc.Encode(line); err != nil {
			return false
		}
		_ = rc.Flush()
		return true
	}

	for chunk, err := range ans.Stream.All() {
		if err != nil {
			if r.Context().Err() != nil {
				s.logger.Info("client disconnected", "request_id", RequestID(r.Context()))
				return
			}
			s.logger.Error("generation failed", "error", err, "request_id", RequestID(r.Context()))
			emit(streamLine{Error: err.Error()})
			return
		}
		line := streamLine{Token: chunk.Token}
		if chunk.Contexts != nil {
			line.Context = chunk.Contexts
			line.Warnings = ans.Warnings
		}
		if !emit(line) {
			return
		}
	}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	for i := range req.Contexts {
		if req.Contexts[i].Origin == "" {
			req.Contexts[i].Origin = source.OriginInternal
		}
	}
	s.logger.Debug("evaluate",
		"course", req.Course,
		"contexts", len(req.Contexts),
		"request_id", RequestID(r.Context()),
	)
	report, err := s.pipeline.Evaluate(r.Context(), pipeline.EvaluateRequest{
		Question: req.Question,
		Answer:   req.Answer,
		Contexts: req.Contexts,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = DefaultSearchTopK
	}

	hits, err := s.pipeline.Search(r.Context(), req.CourseName, req.Text, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := searchResponse{
		Documents: make([]string, len(hits)),
		Metadatas: make([]map[string]any, len(hits)),
		Links:     make([]string, len(hits)),
	}
	for i, h := range hits {
		resp.Documents[i] = h.Text
		resp.Metadatas[i] = h.Metadata
		resp.Links[i] = source.Link(h)
	}
	writeJson(w, http.StatusOK, resp)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeError(w, r, fmt.Errorf("courses: %w: no registry configured", serrors.ErrSourceUnavailable))
		return
	}
	courses, err := s.registry.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names := make([]string, len(courses))
	for i, c := range courses {
		names[i] = c.Name
	}
	writeJson(w, http.StatusOK, map[string][]string{"courses": names})
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeError(w, r, fmt.Errorf("courses: %w: no registry configured", serrors.ErrSourceUnavailable))
		return
	}
	var req createCourseRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := course.ValidateName(req.CourseName); err != nil {
		s.writeError(w, r, err)
		return
	}

	c := course.Course{Name: strings.TrimSpace(req.CourseName), PlaylistURL: req.PlaylistURL}
	if err := s.registry.Create(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.registry.Get(r.Context(), c.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJson(w, http.StatusCreated, created)
}

func (s *Server) handleUploadTranscript(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, r, fmt.Errorf("transcripts: %w: ingestion disabled", serrors.ErrSourceUnavailable))
		return
	}
	collection := chi.URLParam(r, "course")
	videoID := chi.URLParam(r, "video")

	body := io.Reader(r.Body)
	if s.cfg.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	res, err := s.indexer.IngestTranscript(r.Context(), collection, videoID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJson(w, http.StatusCreated, res)
}

// decode reads a JSON body into v and runs struct validation.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w: %w", serrors.ErrInvalidInput, err)
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", serrors.ErrInvalidInput, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %w", serrors.ErrInvalidInput, err)
	}
	return nil
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, serrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, serrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, serrors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, serrors.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, serrors.ErrEmbeddingFailure), errors.Is(err, serrors.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "status", code, "request_id", RequestID(r.Context()))
	}
	writeJson(w, code, map[string]string{"error": err.Error()})
}
