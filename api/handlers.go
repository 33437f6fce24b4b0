/*
handlers.go - HTTP API handlers for the settings override engine

PURPOSE:
  Exposes the cascade engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine. One set of handlers
  serves every settings domain; the domain is bound when the routes are
  registered.

ENDPOINTS (one group per registered domain, e.g. task):
  GET    /api/task-settings?company_id=...   List a company's overrides
  POST   /api/task-settings                  Create an override
  GET    /api/task-settings/resolved/{userID} Effective record for a user
  PATCH  /api/task-settings/{id}             Edit payload and/or re-target
  DELETE /api/task-settings/{id}             Delete an override

  Directory:
  POST   /api/companies                      Provision a tenant
  POST   /api/users                          Provision a rep
  POST   /api/users/{id}/reassign            Move a rep between sub-departments
  GET    /api/users/{id}/pointers            A rep's pointers across domains

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Admin record mutations, role denials
  - 404: Unknown override, company, or user
  - 409: Scope already occupied
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - policy/engine.go: The cascade semantics behind every mutation
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/engagekit/policy-engine/factory"
	"github.com/engagekit/policy-engine/policy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *policy.Engine
	Log    *logrus.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *policy.Engine, log *logrus.Logger) *Handler {
	return &Handler{Engine: engine, Log: log}
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// ListSettings returns a company's overrides for one domain.
// GET /api/{slug}-settings?company_id=...
func (h *Handler) ListSettings(d policy.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := r.URL.Query().Get("company_id")
		if companyID == "" {
			writeError(w, http.StatusBadRequest, "company_id query parameter is required", nil)
			return
		}

		records, err := h.Engine.ListExceptions(r.Context(), d, companyID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		dtos := make([]SettingDTO, len(records))
		for i, rec := range records {
			dtos[i] = toSettingDTO(rec)
		}
		writeJSON(w, http.StatusOK, dtos)
	}
}

// CreateSetting creates an override at a scope and cascades pointers.
// POST /api/{slug}-settings
func (h *Handler) CreateSetting(d policy.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSettingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		priority := policy.Priority(req.Priority)
		scope := policy.Scope{
			CompanyID:       req.CompanyID,
			SubDepartmentID: req.SubDepartmentID,
			UserID:          req.UserID,
		}
		rec, err := h.Engine.CreateException(r.Context(), d, priority, scope, req.Payload)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSettingDTO(*rec))
	}
}

// GetResolved returns the record a user's pointer targets for one domain.
// GET /api/{slug}-settings/resolved/{userID}
func (h *Handler) GetResolved(d policy.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		rec, err := h.Engine.Resolve(r.Context(), userID, d)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingDTO(*rec))
	}
}

// UpdateSetting edits an override's payload and/or moves it to another
// target within its priority level.
// PATCH /api/{slug}-settings/{id}
func (h *Handler) UpdateSetting(d policy.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req UpdateSettingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.ID != "" && req.ID != id {
			writeError(w, http.StatusBadRequest, "Body id does not match path id", nil)
			return
		}

		var newScope *policy.Scope
		if req.SubDepartmentID != "" || req.UserID != "" {
			newScope = &policy.Scope{
				SubDepartmentID: req.SubDepartmentID,
				UserID:          req.UserID,
			}
		}

		rec, err := h.Engine.UpdateException(r.Context(), d, id, req.Payload, newScope)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingDTO(*rec))
	}
}

// DeleteSetting removes an override and reverts its users to the fallback.
// DELETE /api/{slug}-settings/{id}
func (h *Handler) DeleteSetting(d policy.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := h.Engine.DeleteException(r.Context(), d, id); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// CreateCompany provisions a tenant with default admin settings in every
// registered domain.
// POST /api/companies
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	company := policy.Company{ID: req.ID, Name: req.Name}
	if err := h.Engine.ProvisionCompany(r.Context(), company, factory.DefaultPayloads()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

// CreateUser provisions a rep with a pointer into their fallback record in
// every registered domain.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.CompanyID == "" || req.SubDepartmentID == "" {
		writeError(w, http.StatusBadRequest, "id, company_id, and sd_id are required", nil)
		return
	}

	user := policy.User{ID: req.ID, CompanyID: req.CompanyID, SubDepartmentID: req.SubDepartmentID}
	if err := h.Engine.ProvisionUser(r.Context(), user); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// ReassignUser moves a rep to another sub-department and refreshes the
// pointers their sub-department level no longer covers.
// POST /api/users/{id}/reassign
func (h *Handler) ReassignUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReassignUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SubDepartmentID == "" {
		writeError(w, http.StatusBadRequest, "sd_id is required", nil)
		return
	}

	if err := h.Engine.ReassignUser(r.Context(), id, req.SubDepartmentID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserPointers returns a rep's pointers across every domain.
// GET /api/users/{id}/pointers
func (h *Handler) GetUserPointers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ptrs, err := h.Engine.Pointers(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]PointerDTO, len(ptrs))
	for i, ptr := range ptrs {
		dtos[i] = toPointerDTO(ptr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Healthz reports liveness.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
