package handlers

import (
	"net/http"
	"strconv"

	"github.com/agentclash/arena/services"
	"github.com/go-chi/chi/v5"
)

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
	resultService      services.ResultService
}

func NewLeaderboardHandler(ls services.LeaderboardService, rs services.ResultService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: ls,
		resultService:      rs,
	}
}

func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	participants, err := h.leaderboardService.Leaderboard(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"leaderboard": participants}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LeaderboardHandler) RecentResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.resultService.ListRecent(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"results": results}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LeaderboardHandler) MatchSummary(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	summary, err := h.resultService.GetMatchSummary(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"summary": summary}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
