// Package api serves the resolver HTTP API: autosearch, ad-hoc matching,
// blacklist administration, cache control and past runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rdsm-lab/disease-mapper/internal/app"
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/cache"
	"github.com/rdsm-lab/disease-mapper/internal/corpus"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	"github.com/rdsm-lab/disease-mapper/internal/store"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
)

const (
	maxBodyBytes     = 4 << 20
	maxBatchDocs     = 1000
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Config carries the optional collaborators of a Handler. Nil fields turn
// the matching endpoints off.
type Config struct {
	Cache *cache.AutosearchCache
	Store *store.Store
	// BlacklistPath, when set, receives the lists after every edit.
	BlacklistPath string
	Metrics       *metrics.Metrics
}

type Handler struct {
	engine        *app.Engine
	set           *blacklist.Set
	cache         *cache.AutosearchCache
	store         *store.Store
	blacklistPath string
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(engine *app.Engine, set *blacklist.Set, cfg Config) *Handler {
	c := cfg.Cache
	if c == nil {
		c = cache.New(nil, 0)
	}
	return &Handler{
		engine:        engine,
		set:           set,
		cache:         c,
		store:         cfg.Store,
		blacklistPath: cfg.BlacklistPath,
		metrics:       cfg.Metrics,
		logger:        slog.Default().With("component", "api-handler"),
	}
}

// AutosearchResponse is the body of GET /api/v1/autosearch.
type AutosearchResponse struct {
	Query   string           `json:"query"`
	ID      string           `json:"id,omitempty"`
	Terms   []string         `json:"terms"`
	Outcome resolver.Outcome `json:"outcome,omitempty"`
	Cached  bool             `json:"cached"`
}

// Autosearch expands a disease id, name or synonym into the disease's full
// term list.
func (h *Handler) Autosearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	p := h.pipeline(w)
	if p == nil {
		return
	}

	var res resolver.Result
	terms, cached, err := h.cache.GetOrCompute(r.Context(), q, func() ([]string, bool, error) {
		var err error
		res, err = p.Resolver.Lookup(q)
		return res.Terms, res.Outcome != resolver.OutcomeFallback, err
	})
	if err != nil {
		h.countAutosearch("error")
		status := apperrors.HTTPStatus(err)
		logger.FromContext(r.Context()).Info("autosearch rejected", "term", q, "status_code", status, "error", err)
		h.writeError(w, status, apperrors.Message(err))
		return
	}
	resp := AutosearchResponse{Query: q, Terms: terms, Cached: cached}
	// A miss that joined another request's computation has no Result of its own.
	if cached || res.Outcome == "" {
		h.countAutosearch("cached")
	} else {
		resp.ID, resp.Outcome = res.ID, res.Outcome
		h.countAutosearch(string(res.Outcome))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Random returns the term list of a random disease.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	p := h.pipeline(w)
	if p == nil {
		return
	}
	id, err := p.Resolver.RandomID()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatus(err), apperrors.Message(err))
		return
	}
	h.writeJSON(w, http.StatusOK, AutosearchResponse{
		Query:   id,
		ID:      id,
		Terms:   p.Lexicon.Terms(id),
		Outcome: resolver.OutcomeID,
	})
}

// MatchRequest is one document to map.
type MatchRequest struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Column string `json:"column,omitempty"`
}

// MatchResponse carries the filtered hits of one document and what they
// resolve to.
type MatchResponse struct {
	DocumentID string            `json:"document_id"`
	Hits       []matcher.Hit     `json:"hits"`
	Resolved   resolver.Resolved `json:"resolved"`
}

// Match runs one text through the full pipeline.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = "request"
	}
	p := h.pipeline(w)
	if p == nil {
		return
	}
	hits, err := p.Orchestrator.Process(corpus.Document{ID: req.ID, Text: req.Text, Column: req.Column})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hits == nil {
		hits = []matcher.Hit{}
	}
	resp := MatchResponse{
		DocumentID: req.ID,
		Hits:       hits,
		Resolved:   resolver.Resolved{DiseaseIDs: []string{}, DiseaseNames: []string{}},
	}
	if res, ok := p.Resolver.ResolveTable(matcher.Table{req.ID: hits})[req.ID]; ok {
		resp.Resolved = res
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the body of POST /api/v1/match/batch.
type BatchRequest struct {
	Documents []corpus.Document `json:"documents"`
	BatchSize int               `json:"batch_size,omitempty"`
}

// BatchResponse summarizes a batch run.
type BatchResponse struct {
	RunID     string                       `json:"run_id"`
	Documents int                          `json:"documents"`
	Hits      int                          `json:"hits"`
	Filtered  int                          `json:"filtered"`
	Matches   matcher.Table                `json:"matches"`
	Resolved  map[string]resolver.Resolved `json:"resolved"`
	Skipped   any                          `json:"skipped"`
}

// MatchBatch maps up to maxBatchDocs documents in one orchestrated run.
func (h *Handler) MatchBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, http.StatusBadRequest, "documents must not be empty")
		return
	}
	if len(req.Documents) > maxBatchDocs {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d documents per request", maxBatchDocs))
		return
	}
	p := h.pipeline(w)
	if p == nil {
		return
	}
	res, err := p.Orchestrator.Run(r.Context(), req.Documents, req.BatchSize)
	if err != nil {
		logger.FromContext(r.Context()).Warn("batch run interrupted", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "batch run interrupted")
		return
	}
	skipped := any(res.Skipped)
	if res.Skipped == nil {
		skipped = []struct{}{}
	}
	h.writeJSON(w, http.StatusOK, BatchResponse{
		RunID:     res.RunID,
		Documents: res.Documents,
		Hits:      res.Hits,
		Filtered:  res.Filtered,
		Matches:   res.Table,
		Resolved:  p.Resolver.ResolveTable(res.Table),
		Skipped:   skipped,
	})
}

// LexiconStats describes the active lexicon.
func (h *Handler) LexiconStats(w http.ResponseWriter, r *http.Request) {
	p := h.pipeline(w)
	if p == nil {
		return
	}
	names, synonyms := p.Lexicon.CountByType()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"terms":             p.Lexicon.Len(),
		"names":             names,
		"synonyms":          synonyms,
		"diseases":          len(p.Lexicon.IDs()),
		"max_phrase_len":    p.Lexicon.MaxPhraseLen(),
		"build":             p.Stats,
		"overrides":         p.Overrides,
		"blacklist_version": p.Blacklist.Version,
		"built_at":          p.BuiltAt,
	})
}

// ListBlacklist returns one list, sorted.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	kind, err := blacklist.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, apperrors.Message(err))
		return
	}
	words := h.set.List(kind)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind,
		"words":   words,
		"count":   len(words),
		"version": h.set.Version(),
	})
}

type wordsRequest struct {
	Words []string `json:"words"`
}

// AddBlacklist adds words to one list and rebuilds the pipeline.
func (h *Handler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	h.editBlacklist(w, r, func(kind blacklist.Kind, words []string) int {
		return h.set.Add(kind, words...)
	})
}

// RemoveBlacklist removes words from one list, or clears it with ?all=true.
func (h *Handler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		kind, err := blacklist.ParseKind(r.PathValue("kind"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, apperrors.Message(err))
			return
		}
		n := len(h.set.List(kind))
		h.set.Clear(kind)
		h.afterBlacklistEdit(r.Context(), w, kind, n)
		return
	}
	h.editBlacklist(w, r, func(kind blacklist.Kind, words []string) int {
		return h.set.Remove(kind, words...)
	})
}

func (h *Handler) editBlacklist(w http.ResponseWriter, r *http.Request, apply func(blacklist.Kind, []string) int) {
	kind, err := blacklist.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, apperrors.Message(err))
		return
	}
	var req wordsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Words) == 0 {
		h.writeError(w, http.StatusBadRequest, "words must not be empty")
		return
	}
	h.afterBlacklistEdit(r.Context(), w, kind, apply(kind, req.Words))
}

func (h *Handler) afterBlacklistEdit(ctx context.Context, w http.ResponseWriter, kind blacklist.Kind, changed int) {
	log := logger.FromContext(ctx)
	if changed > 0 {
		if h.blacklistPath != "" {
			if err := blacklist.SaveFile(h.blacklistPath, h.set); err != nil {
				log.Error("failed to persist blacklist", "path", h.blacklistPath, "error", err)
				h.writeError(w, http.StatusInternalServerError, "blacklist updated but could not be saved")
				return
			}
		}
		h.Reload(ctx, h.set.Snapshot())
	}
	log.Info("blacklist edited", "kind", kind, "changed", changed, "version", h.set.Version())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind,
		"changed": changed,
		"count":   len(h.set.List(kind)),
		"version": h.set.Version(),
	})
}

// Reload rebuilds the pipeline against snap and drops cached answers. The
// blacklist file watcher calls it too.
func (h *Handler) Reload(ctx context.Context, snap blacklist.Snapshot) {
	if cur := h.engine.Current(); cur != nil && cur.Blacklist.Version == snap.Version {
		return
	}
	h.engine.Rebuild(snap)
	if _, err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("cache invalidation after reload failed", "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	s := h.cache.Stats(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled": h.cache.Enabled(),
		"hits":    s.Hits,
		"misses":  s.Misses,
		"keys":    s.Keys,
		"breaker": s.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys_deleted": n})
}

// ListRuns returns recent persisted runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, "run store is not configured")
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing runs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// RunDocument returns what one document resolved to in a persisted run.
func (h *Handler) RunDocument(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, "run store is not configured")
		return
	}
	runID, docID := r.PathValue("run"), r.PathValue("doc")
	res, err := h.store.Resolved(r.Context(), runID, docID)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status >= 500 {
			logger.FromContext(r.Context()).Error("loading resolved document failed", "run_id", runID, "doc_id", docID, "error", err)
		}
		h.writeError(w, status, apperrors.Message(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      runID,
		"document_id": docID,
		"resolved":    res,
	})
}

func (h *Handler) pipeline(w http.ResponseWriter) *app.Pipeline {
	p := h.engine.Current()
	if p == nil {
		h.writeError(w, http.StatusServiceUnavailable, "lexicon not loaded")
	}
	return p
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) countAutosearch(outcome string) {
	if h.metrics != nil {
		h.metrics.AutosearchTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
