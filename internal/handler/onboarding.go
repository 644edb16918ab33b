package handler

import (
	"net/http"

	"github.com/dangerclosesec/tenantkit/internal/service"
)

type OnboardingHandler struct {
	onboarding *service.OnboardingService
}

func NewOnboardingHandler(onboarding *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboarding}
}

func (h *OnboardingHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.onboarding.Status(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, status)
}

// Bootstrap creates the first super admin. It only succeeds while the
// install has none.
func (h *OnboardingHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var input service.BootstrapInput
	if !decodeJSON(w, r, &input) {
		return
	}

	session, err := h.onboarding.Bootstrap(r.Context(), callerFrom(r), input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, session)
}
