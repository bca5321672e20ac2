// Package api exposes the HTTP surface: querying, text analysis,
// ingestion, backend status, and index statistics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fabfab/knowledge-copilot/config"
	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/ingestion"
	"github.com/fabfab/knowledge-copilot/knowledge"
	"github.com/fabfab/knowledge-copilot/llm"
	"github.com/fabfab/knowledge-copilot/rag"
)

const (
	defaultQueryK = 3
	maxQueryK     = 10

	// sourceExcerptChars bounds the chunk text echoed back in query
	// responses; full chunks stay in the index.
	sourceExcerptChars = 500
)

// Services bundles everything the handlers need. All fields except
// Graph are required.
type Services struct {
	Index    index.Index
	Ingest   *ingestion.Service
	RAG      *rag.Service
	Analyzer *rag.Analyzer
	Registry *llm.Registry
	Monitor  *llm.Monitor
	Graph    *knowledge.Graph
}

// Server exposes HTTP handlers for the knowledge-copilot workflows.
// It holds fully constructed services; nothing is dialed per request.
type Server struct {
	cfg      config.Config
	logger   *log.Logger
	services Services
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
	Provider string `json:"provider"`
}

type queryResponse struct {
	Answer            string        `json:"answer"`
	Sources           []querySource `json:"sources"`
	Provider          string        `json:"provider"`
	FollowUpQuestions []string      `json:"follow_up_questions,omitempty"`
	ProcessingTime    int64         `json:"processing_time_ms"`
}

type querySource struct {
	Source     string                `json:"source"`
	ChunkIndex int                   `json:"chunk_index"`
	Excerpt    string                `json:"excerpt"`
	Score      float64               `json:"score"`
	Related    []rag.RelatedDocument `json:"related_documents,omitempty"`
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

type analyzeResponse struct {
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
	Complexity     string   `json:"complexity"`
	ProcessingTime int64    `json:"processing_time_ms"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type statsResponse struct {
	index.Stats
	Providers       []string `json:"providers"`
	DefaultProvider string   `json:"default_provider"`
}

// New constructs a Server around already-wired services.
func New(cfg config.Config, services Services, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{cfg: cfg, logger: logger, services: services}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/ai-status", s.handleAIStatus)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	if len(req.Question) > s.cfg.MaxQueryChars {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("question is %d chars, limit is %d", len(req.Question), s.cfg.MaxQueryChars))
		return
	}

	k := req.K
	if k <= 0 {
		k = defaultQueryK
	}
	if k > maxQueryK {
		k = maxQueryK
	}

	ctx := r.Context()

	answer, err := s.services.RAG.Answer(ctx, req.Question, k, req.Provider)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	resp := queryResponse{
		Answer:         answer.Content,
		Sources:        toQuerySources(answer.Sources),
		Provider:       answer.Provider,
		ProcessingTime: answer.ProcessingTime.Milliseconds(),
	}
	if len(answer.Sources) > 0 {
		resp.FollowUpQuestions = s.services.RAG.FollowUps(ctx, req.Question, answer.Content, req.Provider)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	analysis, err := s.services.Analyzer.Analyze(r.Context(), req.Text, req.Provider)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, analyzeResponse{
		Summary:        analysis.Summary,
		Tags:           analysis.Tags,
		Complexity:     analysis.Complexity,
		ProcessingTime: analysis.ProcessingTime.Milliseconds(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.cfg.DataDir
	}

	s.logger.Printf("ingesting documents from %s", dir)
	report, err := s.services.Ingest.IngestDirectory(r.Context(), dir)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	provider := r.URL.Query().Get("provider")
	refresh := r.URL.Query().Get("refresh") == "true"

	var (
		status llm.Status
		err    error
	)
	if refresh {
		status, err = s.services.Monitor.Refresh(r.Context(), provider)
	} else {
		status, err = s.services.Monitor.Status(r.Context(), provider)
	}
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.services.Index.Stats(r.Context())
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Stats:           stats,
		Providers:       s.services.Registry.Providers(),
		DefaultProvider: s.services.Registry.DefaultProvider(),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("clear requires confirm=true"))
		return
	}

	ctx := r.Context()
	if err := s.services.Index.Clear(ctx); err != nil {
		s.writeError(w, statusForError(err), fmt.Errorf("clear index: %w", err))
		return
	}
	if s.services.Graph != nil {
		if err := s.services.Graph.Clear(ctx); err != nil {
			s.logger.Printf("clear graph: %v", err)
		}
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "knowledge base cleared"})
}

func toQuerySources(sources []rag.Source) []querySource {
	out := make([]querySource, len(sources))
	for i, src := range sources {
		out[i] = querySource{
			Source:     src.Source,
			ChunkIndex: src.ChunkIndex,
			Excerpt:    excerpt(src.Content, sourceExcerptChars),
			Score:      src.Score,
			Related:    src.Related,
		}
	}
	return out
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// statusForError maps service sentinels to HTTP codes. Anything not in
// the taxonomy is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, index.ErrInvalidArgument),
		errors.Is(err, ingestion.ErrInvalidChunkConfig),
		errors.Is(err, rag.ErrInputTooLong),
		errors.Is(err, llm.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
