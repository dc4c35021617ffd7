package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/agentclash/arena/arena"
	"github.com/agentclash/arena/engine"
	"github.com/agentclash/arena/middleware"
	"github.com/go-chi/chi/v5"
)

// ArenaHandler exposes queues, live matches and action submission.
type ArenaHandler struct {
	orchestrator *arena.Orchestrator
	registry     *engine.Registry
}

func NewArenaHandler(orchestrator *arena.Orchestrator, registry *engine.Registry) *ArenaHandler {
	return &ArenaHandler{
		orchestrator: orchestrator,
		registry:     registry,
	}
}

func (h *ArenaHandler) ListGameTypes(w http.ResponseWriter, r *http.Request) {
	response := jsonResponse{"game_types": h.registry.List()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ArenaHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	participantID, err := middleware.GetParticipantIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify participant")
		return
	}
	gameTypeID := chi.URLParam(r, "gameTypeID")

	if err := h.orchestrator.JoinQueue(gameTypeID, participantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status, err := h.orchestrator.QueueStatus(gameTypeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	response := jsonResponse{"queue": status}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ArenaHandler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	participantID, err := middleware.GetParticipantIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify participant")
		return
	}
	gameTypeID := chi.URLParam(r, "gameTypeID")

	if err := h.orchestrator.LeaveQueue(gameTypeID, participantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ArenaHandler) QueueStatuses(w http.ResponseWriter, r *http.Request) {
	response := jsonResponse{"queues": h.orchestrator.QueueStatuses()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type liveMatchView struct {
	MatchID      string `json:"match_id"`
	GameTypeID   string `json:"game_type_id"`
	Phase        string `json:"phase"`
	Participants int    `json:"participants"`
}

func (h *ArenaHandler) LiveMatches(w http.ResponseWriter, r *http.Request) {
	matches := h.orchestrator.LiveMatches()
	views := make([]liveMatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, liveMatchView{
			MatchID:      m.ID(),
			GameTypeID:   m.GameTypeID(),
			Phase:        string(m.Phase()),
			Participants: len(m.Participants()),
		})
	}
	response := jsonResponse{"matches": views}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ArenaHandler) MatchState(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	match, ok := h.orchestrator.GetMatch(matchID)
	if !ok {
		notFoundResponse(w, r)
		return
	}
	response := jsonResponse{"state": match.PublicState()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// actionInput is the tagged wire form of an action. Fields beyond kind are
// interpreted per kind.
type actionInput struct {
	Kind    string          `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Amount  *float64        `json:"amount,omitempty"`
	Choice  string          `json:"choice,omitempty"`
	TargetX *int            `json:"target_x,omitempty"`
	TargetY *int            `json:"target_y,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func decodeAction(input actionInput) (engine.Action, error) {
	switch engine.ActionKind(input.Kind) {
	case engine.ActionChat:
		return engine.ChatAction{Text: input.Text}, nil
	case engine.ActionBid:
		if input.Amount == nil {
			return nil, errors.New("bid action requires an amount")
		}
		return engine.BidAction{Amount: *input.Amount}, nil
	case engine.ActionThrow:
		if input.Choice == "" {
			return nil, errors.New("throw action requires a choice")
		}
		return engine.ThrowAction{Choice: engine.ThrowChoice(input.Choice)}, nil
	case engine.ActionMove:
		if input.TargetX == nil || input.TargetY == nil {
			return nil, errors.New("move action requires target_x and target_y")
		}
		return engine.MoveAction{TargetX: *input.TargetX, TargetY: *input.TargetY}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", input.Kind)
	}
}

func (h *ArenaHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	participantID, err := middleware.GetParticipantIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify participant")
		return
	}
	matchID := chi.URLParam(r, "matchID")

	var input actionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	action, err := decodeAction(input)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.orchestrator.SubmitAction(matchID, participantID, action); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ArenaHandler) MyLocation(w http.ResponseWriter, r *http.Request) {
	participantID, err := middleware.GetParticipantIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify participant")
		return
	}
	state, gameTypeID, matchID := h.orchestrator.Location(participantID)
	response := jsonResponse{
		"state":        state,
		"game_type_id": gameTypeID,
		"match_id":     matchID,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
