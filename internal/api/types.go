package api

import "github.com/hackgods/care-coordination/internal/pharmacy"

// Response is the envelope every endpoint answers with.
type Response struct {
	Success      bool     `json:"success"`
	Data         any      `json:"data,omitempty"`
	Error        string   `json:"error,omitempty"`
	Code         string   `json:"code,omitempty"`
	MissingItems []string `json:"missingItems,omitempty"`
}

const (
	CodeNotFound          = "not_found"
	CodeUnauthorized      = "unauthorized"
	CodeSlotUnavailable   = "slot_unavailable"
	CodeInsufficientStock = "insufficient_stock"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidInput      = "invalid_input"
	CodePersistence       = "persistence_error"
	CodeInternal          = "internal_error"
)

type CancelRequest struct {
	Reason string `json:"reason"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type CompleteRequest struct {
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription"`
}

type GenerateSlotsRequest struct {
	DoctorIDs   []string `json:"doctorIds"`
	HorizonDays int      `json:"horizonDays"`
	Times       []string `json:"times"`
}

type GenerateSlotsResponse struct {
	Added int `json:"added"`
}

type ApproveRequest struct {
	Notes string `json:"notes"`
}

type RejectRequest struct {
	Reason       string `json:"reason"`
	CustomReason string `json:"customReason"`
}

type AvailabilityRequest struct {
	PharmacyID string              `json:"pharmacyId"`
	Items      []pharmacy.LineItem `json:"items"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta"`
}

type CountResponse struct {
	Count int `json:"count"`
}
