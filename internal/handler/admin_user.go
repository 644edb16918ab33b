package handler

import (
	"net/http"

	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/service"
)

// UserAdminHandler serves the /api/admin/users routes.
type UserAdminHandler struct {
	users *service.UserAdminService
}

func NewUserAdminHandler(users *service.UserAdminService) *UserAdminHandler {
	return &UserAdminHandler{users: users}
}

func userListInput(r *http.Request) service.UserListInput {
	q := r.URL.Query()
	return service.UserListInput{
		Search:   q.Get("search"),
		Role:     permission.Role(q.Get("role")),
		IsActive: boolParam(r, "is_active"),
		SortBy:   q.Get("sort"),
		Desc:     q.Get("order") == "desc",
		Page:     pageParams(r),
	}
}

func (h *UserAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.users.List(r.Context(), callerFrom(r), userListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, page)
}

func (h *UserAdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, user)
}

func (h *UserAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if !decodeJSON(w, r, &input) {
		return
	}

	user, err := h.users.Create(r.Context(), callerFrom(r), input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, user)
}

func (h *UserAdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	var input service.UpdateUserInput
	if !decodeJSON(w, r, &input) {
		return
	}

	user, err := h.users.Update(r.Context(), callerFrom(r), id, input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, user)
}

type userStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetStatus activates or deactivates an account.
func (h *UserAdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	var req userStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		respondWithJSON(w, http.StatusBadRequest, Response{
			Error:  "Validation failed",
			Errors: map[string]string{"is_active": "is required"},
		})
		return
	}

	user, err := h.users.SetActive(r.Context(), callerFrom(r), id, *req.IsActive)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, user)
}

func (h *UserAdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), callerFrom(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserAdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := exportFormat(w, r)
	if !ok {
		return
	}

	users, err := h.users.Export(r.Context(), callerFrom(r), userListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeExport(w, r, "users", format, users)
}
