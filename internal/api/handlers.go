package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/authz"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/notify"
	"github.com/hackgods/care-coordination/internal/pharmacy"
)

// Handler serves the domain services over HTTP.
type Handler struct {
	appointments  *appointment.Service
	pharmacy      *pharmacy.Service
	notifications *notify.Service
	logger        zerolog.Logger
}

func NewHandler(appts *appointment.Service, pharm *pharmacy.Service, feed *notify.Service, logger zerolog.Logger) *Handler {
	return &Handler{appointments: appts, pharmacy: pharm, notifications: feed, logger: logger}
}

var errBadBody = errors.New("could not parse JSON body")

// decodeJSON treats an empty body as the zero value.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

// requireActor rejects requests without an identity.
func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor := GetActor(r.Context())
	if actor.ID == "" {
		writeError(w, http.StatusForbidden, CodeUnauthorized, "missing "+HeaderActorID)
		return actor, false
	}
	return actor, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Success: false, Error: message, Code: code})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
}

// writeServiceError maps domain errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var stock *pharmacy.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, Response{
			Error:        err.Error(),
			Code:         CodeInsufficientStock,
			MissingItems: stock.MissingItems,
		})
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, pharmacy.ErrOrderNotFound),
		errors.Is(err, pharmacy.ErrItemNotFound),
		errors.Is(err, notify.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, http.StatusForbidden, CodeUnauthorized, err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, CodeSlotUnavailable, err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, pharmacy.ErrInvalidTransition):
		writeError(w, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, appointment.ErrInvalidInput),
		errors.Is(err, pharmacy.ErrInvalidInput),
		errors.Is(err, notify.ErrNoRecipient):
		writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, kv.ErrPersistence):
		h.logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("persistence failure")
		writeError(w, http.StatusServiceUnavailable, CodePersistence, "storage unavailable")
	default:
		h.logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
