package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/store"
)

type historyItem struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Cost      int       `json:"cost"`
	Summary   string    `json:"summary"`
	Name      string    `json:"name"`
	BirthYear int       `json:"birthYear"`
	Model     string    `json:"model"`
}

type historyDetail struct {
	ID               string                 `json:"id"`
	CreatedAt        time.Time              `json:"createdAt"`
	Cost             int                    `json:"cost"`
	Model            string                 `json:"model"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
	Result           model.NormalizedResult `json:"result"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		zap.L().Warn("server: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if caller == nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": model.AccountView{
		ID: caller.AccountID, Email: caller.Email, Points: caller.Balance,
	}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	filter := store.HistoryFilter{
		AccountID: caller.AccountID,
		Limit:     queryInt(r, "limit", DefaultHistoryLimit),
		Offset:    queryInt(r, "offset", 0),
	}
	rows, err := s.deps.Store.ListAnalyses(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list history", zap.String("account_id", caller.AccountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(engine.KindInternal), "could not load history")
		return
	}

	items := make([]historyItem, 0, len(rows))
	for _, a := range rows {
		items = append(items, historyItem{
			ID:        a.ID,
			CreatedAt: a.CreatedAt,
			Cost:      a.Cost,
			Summary:   a.Summary,
			Name:      a.Name,
			BirthYear: a.BirthYear,
			Model:     a.ModelUsed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	rec, err := s.deps.Store.GetAnalysis(r.Context(), caller.AccountID, chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("server: get history item", zap.String("account_id", caller.AccountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(engine.KindInternal), "could not load analysis")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": historyDetail{
		ID:               rec.ID,
		CreatedAt:        rec.CreatedAt,
		Cost:             rec.Cost,
		Model:            rec.ModelUsed,
		ProcessingTimeMs: rec.ProcessingTimeMs,
		Result:           rec.Result,
	}})
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*model.Caller, bool) {
	caller, err := s.deps.Resolver.ResolveCaller(r)
	if err != nil {
		zap.L().Error("server: resolve caller", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(engine.KindInternal), "could not load account")
		return nil, false
	}
	return caller, true
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (*model.Caller, bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return nil, false
	}
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required")
		return nil, false
	}
	return caller, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
