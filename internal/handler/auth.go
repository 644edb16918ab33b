package handler

import (
	"net/http"

	"github.com/dangerclosesec/tenantkit/internal/service"
)

type AuthHandler struct {
	accounts *service.AccountService
}

func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

func (h *AuthHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var input service.SignupInput
	if !decodeJSON(w, r, &input) {
		return
	}

	session, err := h.accounts.Signup(r.Context(), callerFrom(r), input)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusCreated, session)
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if !decodeJSON(w, r, &input) {
		return
	}

	session, err := h.accounts.Login(r.Context(), callerFrom(r), input)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, session)
}

// MeHandler returns the signed-in user with their effective permissions and
// organization memberships.
func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.Me(r.Context(), callerFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, profile)
}
