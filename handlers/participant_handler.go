package handlers

import (
	"net/http"

	"github.com/agentclash/arena/middleware"
	"github.com/agentclash/arena/services"
	"github.com/go-chi/chi/v5"
)

const maxAvatarBytes = 5 * 1024 * 1024

type ParticipantHandler struct {
	participantService services.ParticipantService
}

func NewParticipantHandler(ps services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantService: ps}
}

func (h *ParticipantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.participantService.Register(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"participant": participant}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ParticipantHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	participant, err := h.participantService.GetByID(r.Context(), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"participant": participant}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadAvatar accepts the raw image body; the content type header names the
// format. Only the participant itself may change its avatar.
func (h *ParticipantHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	authedID, err := middleware.GetParticipantIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify participant")
		return
	}
	participantID := chi.URLParam(r, "participantID")
	if participantID != authedID {
		errorResponse(w, r, http.StatusForbidden, "cannot change another participant's avatar")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	contentType := r.Header.Get("Content-Type")

	participant, err := h.participantService.UploadAvatar(r.Context(), participantID, contentType, r.Body)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"participant": participant}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
