package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/authz"
)

func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	// a patient books for themselves
	if actor := GetActor(r.Context()); actor.Role == authz.RolePatient {
		if req.PatientID != "" && req.PatientID != actor.ID {
			writeError(w, http.StatusForbidden, CodeUnauthorized, "patients can only book for themselves")
			return
		}
		req.PatientID = actor.ID
	}

	appt, err := h.appointments.Book(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appt)
}

// ListAppointments filters by patientId or doctorId, falling back to the caller.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := appointment.StatusFilter(q.Get("status"))
	patientID, doctorID := q.Get("patientId"), q.Get("doctorId")

	if patientID == "" && doctorID == "" {
		actor := GetActor(r.Context())
		switch actor.Role {
		case authz.RolePatient:
			patientID = actor.ID
		case authz.RoleDoctor:
			doctorID = actor.ID
		}
	}

	var (
		views []appointment.View
		err   error
	)
	switch {
	case patientID != "":
		views, err = h.appointments.ListByPatient(r.Context(), patientID, status)
	case doctorID != "":
		views, err = h.appointments.ListByDoctor(r.Context(), doctorID, q.Get("date"), status)
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "patientId or doctorId is required")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, views)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	view, err := h.appointments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, view)
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var upd appointment.Update
	if err := decodeJSON(r, &upd); err != nil {
		writeBadRequest(w, err)
		return
	}
	appt, err := h.appointments.Update(r.Context(), chi.URLParam(r, "id"), upd, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	appt, err := h.appointments.Cancel(r.Context(), chi.URLParam(r, "id"), actor, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appt)
}

func (h *Handler) AddNotes(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req NotesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	appt, err := h.appointments.AddNotes(r.Context(), chi.URLParam(r, "id"), req.Notes, actor.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appt)
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	appt, err := h.appointments.Complete(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Diagnosis, req.Prescription)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appt)
}

func (h *Handler) SearchAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	views, err := h.appointments.Search(r.Context(), r.URL.Query().Get("q"), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, views)
}

func (h *Handler) AppointmentStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	st, err := h.appointments.Stats(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, st)
}

func (h *Handler) AppointmentTypes(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.appointments.Types())
}

func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	times, err := h.appointments.AvailableSlots(r.Context(), q.Get("doctorId"), q.Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, times)
}

func (h *Handler) DoctorSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.appointments.Schedule(r.Context(), q.Get("doctorId"), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, days)
}

func (h *Handler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req GenerateSlotsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	added, err := h.appointments.GenerateSlots(r.Context(), req.DoctorIDs, req.HorizonDays, req.Times)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, GenerateSlotsResponse{Added: added})
}
