package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pktracker/internal/service"
)

// NewRouter exposes read-only leaderboard and history endpoints.
func NewRouter(ranking *service.RankingService, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	h := &rankingHandler{ranking: ranking, log: log.With().Str("component", "http").Logger()}
	r.Route("/groups/{group}", func(r chi.Router) {
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/users/{user}/checkins", h.userCheckins)
	})

	return r
}

type rankingHandler struct {
	ranking *service.RankingService
	log     zerolog.Logger
}

func (h *rankingHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.ranking.Leaderboard(r.Context(), chi.URLParam(r, "group"), r.URL.Query().Get("task"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *rankingHandler) userCheckins(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "page must be a number"})
			return
		}
		page = n
	}
	size := service.DefaultPageSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "size must be between 1 and 100"})
			return
		}
		size = n
	}

	detail, err := h.ranking.UserDetail(r.Context(), chi.URLParam(r, "group"), chi.URLParam(r, "user"), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *rankingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, service.ErrNoRecords):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidParameter):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request failed")
		writeJSON(w, status, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
