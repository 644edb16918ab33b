package handler

import (
	"net/http"

	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrganizationHandler struct {
	organizations *service.OrganizationService
}

func NewOrganizationHandler(organizations *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{organizations: organizations}
}

// ListMine returns the caller's memberships with their organizations.
func (h *OrganizationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.organizations.ListMine(r.Context(), callerFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, memberships)
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateOrganizationInput
	if !decodeJSON(w, r, &input) {
		return
	}

	org, err := h.organizations.Create(r.Context(), callerFrom(r), input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, org)
}

func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	org, err := h.organizations.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, org)
}

func (h *OrganizationHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	org, err := h.organizations.GetBySlug(r.Context(), callerFrom(r), chi.URLParam(r, "slug"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, org)
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	var input service.UpdateOrganizationInput
	if !decodeJSON(w, r, &input) {
		return
	}

	org, err := h.organizations.Update(r.Context(), callerFrom(r), id, input)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, org)
}

func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	if err := h.organizations.Delete(r.Context(), callerFrom(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}

	members, err := h.organizations.ListMembers(r.Context(), callerFrom(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, members)
}

type memberRoleRequest struct {
	Role permission.OrgRole `json:"role"`
}

func (h *OrganizationHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	var req memberRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := h.organizations.UpdateMemberRole(r.Context(), callerFrom(r), orgID, userID, req.Role)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, member)
}

func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := uuidParam(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	if err := h.organizations.RemoveMember(r.Context(), callerFrom(r), orgID, userID); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func organizationListInput(r *http.Request) service.OrganizationListInput {
	q := r.URL.Query()
	return service.OrganizationListInput{
		Search:             q.Get("search"),
		PlanType:           model.PlanType(q.Get("plan_type")),
		SubscriptionStatus: model.SubscriptionStatus(q.Get("subscription_status")),
		Page:               pageParams(r),
	}
}

// AdminList is the platform-wide organization listing.
func (h *OrganizationHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, err := h.organizations.AdminList(r.Context(), callerFrom(r), organizationListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, page)
}

func (h *OrganizationHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := exportFormat(w, r)
	if !ok {
		return
	}

	orgs, err := h.organizations.Export(r.Context(), callerFrom(r), organizationListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeExport(w, r, "organizations", format, orgs)
}
