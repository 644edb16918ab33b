package handler

import (
	"net/http"
	"strings"

	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/go-chi/chi/v5"
)

type InvitationHandler struct {
	invitations *service.InvitationService
}

func NewInvitationHandler(invitations *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// Lookup previews an invitation by its token for the accept page.
func (h *InvitationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	preview, err := h.invitations.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, preview)
}

type acceptRequest struct {
	Token string `json:"token"`
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		respondWithJSON(w, http.StatusBadRequest, Response{
			Error:  "Validation failed",
			Errors: map[string]string{"token": "is required"},
		})
		return
	}

	member, err := h.invitations.Accept(r.Context(), callerFrom(r), req.Token)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, member)
}

// ListMine returns pending invitations addressed to the caller's email.
func (h *InvitationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.invitations.ListMine(r.Context(), callerFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, invitations)
}

func (h *InvitationHandler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	status := model.InvitationStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondWithError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	invitations, err := h.invitations.ListForOrganization(r.Context(), callerFrom(r), orgID, status)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, invitations)
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	var input service.CreateInvitationInput
	if !decodeJSON(w, r, &input) {
		return
	}

	result, err := h.invitations.Create(r.Context(), callerFrom(r), orgID, input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, result)
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}
	invID, ok := uuidParam(w, r, "invitationID")
	if !ok {
		return
	}

	if err := h.invitations.Cancel(r.Context(), callerFrom(r), orgID, invID); err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": string(model.InvitationCancelled)})
}

// Resend rotates the token, extends the expiry and mails the invitee again.
func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}
	invID, ok := uuidParam(w, r, "invitationID")
	if !ok {
		return
	}

	result, err := h.invitations.Resend(r.Context(), callerFrom(r), orgID, invID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

// ExpireStale is the machine route behind the service key.
func (h *InvitationHandler) ExpireStale(w http.ResponseWriter, r *http.Request) {
	n, err := h.invitations.ExpireStale(r.Context(), callerFrom(r).Actor())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int64{"expired": n})
}
