/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes for the settings endpoints, plus the error envelope and the
  shared write helpers. Setting payloads cross this layer as raw JSON; the
  per-domain codecs validate them inside the engine.

SEE ALSO:
  - handlers.go: Handler implementations using these types
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/engagekit/policy-engine/policy"
)

// =============================================================================
// SETTINGS
// =============================================================================

// SettingDTO is the wire form of an override record.
type SettingDTO struct {
	ID              string          `json:"id"`
	Domain          string          `json:"domain"`
	Priority        string          `json:"priority"`
	CompanyID       string          `json:"company_id"`
	SubDepartmentID string          `json:"sd_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func toSettingDTO(rec policy.ExceptionRecord) SettingDTO {
	return SettingDTO{
		ID:              rec.ID,
		Domain:          string(rec.Domain),
		Priority:        string(rec.Priority),
		CompanyID:       rec.CompanyID,
		SubDepartmentID: rec.SubDepartmentID,
		UserID:          rec.UserID,
		Payload:         rec.Payload,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// CreateSettingRequest creates an override at a scope.
type CreateSettingRequest struct {
	Priority        string          `json:"priority"`
	CompanyID       string          `json:"company_id"`
	SubDepartmentID string          `json:"sd_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// UpdateSettingRequest edits an override's payload and/or moves it to a new
// target within its priority level. ID must match the path.
type UpdateSettingRequest struct {
	ID              string          `json:"id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	SubDepartmentID string          `json:"sd_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
}

// PointerDTO is the wire form of a resolved (user, domain) pointer.
type PointerDTO struct {
	UserID      string    `json:"user_id"`
	Domain      string    `json:"domain"`
	ExceptionID string    `json:"exception_id"`
	Priority    string    `json:"priority"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPointerDTO(ptr policy.PolicyPointer) PointerDTO {
	return PointerDTO{
		UserID:      ptr.UserID,
		Domain:      string(ptr.Domain),
		ExceptionID: ptr.ExceptionID,
		Priority:    string(ptr.Priority),
		UpdatedAt:   ptr.UpdatedAt,
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

// CreateCompanyRequest provisions a tenant with default admin settings.
type CreateCompanyRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateUserRequest provisions a rep with pointers into their fallbacks.
type CreateUserRequest struct {
	ID              string `json:"id"`
	CompanyID       string `json:"company_id"`
	SubDepartmentID string `json:"sd_id"`
}

// ReassignUserRequest moves a rep to another sub-department.
type ReassignUserRequest struct {
	SubDepartmentID string `json:"sd_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrValidation):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, policy.ErrScopeConflict):
		writeError(w, http.StatusConflict, "Scope already has an override", err)
	case policy.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, policy.ErrForbidden):
		writeError(w, http.StatusForbidden, "Operation not allowed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
