package appointment

import (
	"fmt"
	"time"

	"github.com/hackgods/care-coordination/internal/authz"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultDuration = 30 // minutes
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ConsultationType string

const (
	ConsultationInPerson ConsultationType = "in-person"
	ConsultationVideo    ConsultationType = "video"
	ConsultationPhone    ConsultationType = "phone"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Types lists the bookable appointment types.
var Types = []string{
	"General Consultation",
	"Follow-up",
	"Routine Check-up",
	"Vaccination",
	"Health Screening",
	"Prescription Renewal",
	"Specialist Consultation",
	"Emergency Consultation",
}

// Slot is one bookable (doctor, date, time) triple.
type Slot struct {
	Key           string `json:"key"`
	DoctorID      string `json:"doctorId"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

func SlotKey(doctorID, date, clock string) string {
	return fmt.Sprintf("%s_%s_%s", doctorID, date, clock)
}

type Appointment struct {
	ID                   string           `json:"id"`
	PatientID            string           `json:"patientId"`
	PatientName          string           `json:"patientName"`
	PatientPhone         string           `json:"patientPhone,omitempty"`
	PatientEmail         string           `json:"patientEmail,omitempty"`
	DoctorID             string           `json:"doctorId"`
	DoctorName           string           `json:"doctorName"`
	DoctorSpecialization string           `json:"doctorSpecialization,omitempty"`
	Type                 string           `json:"appointmentType"`
	Date                 string           `json:"date"`
	Time                 string           `json:"time"`
	Duration             int              `json:"duration"`
	Reason               string           `json:"reason"`
	Symptoms             string           `json:"symptoms"`
	Notes                string           `json:"notes"`
	Diagnosis            string           `json:"diagnosis,omitempty"`
	Prescription         string           `json:"prescription,omitempty"`
	ConsultationType     ConsultationType `json:"consultationType"`
	Priority             Priority         `json:"priority"`
	Status               Status           `json:"status"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	CancelledAt          *time.Time       `json:"cancelledAt,omitempty"`
	CancelledBy          authz.Role       `json:"cancelledBy,omitempty"`
	CancellationReason   string           `json:"cancellationReason,omitempty"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
}

func (a Appointment) SlotKey() string {
	return SlotKey(a.DoctorID, a.Date, a.Time)
}

func (a Appointment) Ownership() authz.Ownership {
	return authz.Ownership{RequesterID: a.PatientID, ProviderID: a.DoctorID}
}

// StartsAt interprets date and time in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
}

// View is an appointment plus flags derived from the clock at read time.
// The flags are never persisted.
type View struct {
	Appointment
	IsUpcoming bool `json:"isUpcoming"`
	IsPast     bool `json:"isPast"`
	IsToday    bool `json:"isToday"`
}

func newView(a Appointment, now time.Time) View {
	v := View{Appointment: a, IsToday: a.Date == now.Format(DateLayout)}
	if start, err := a.StartsAt(now.Location()); err == nil {
		v.IsUpcoming = start.After(now)
		v.IsPast = start.Before(now)
	}
	return v
}

// BookingRequest carries everything the caller knows about the visit.
type BookingRequest struct {
	PatientID            string           `json:"patientId"`
	PatientName          string           `json:"patientName"`
	PatientPhone         string           `json:"patientPhone"`
	PatientEmail         string           `json:"patientEmail"`
	DoctorID             string           `json:"doctorId"`
	DoctorName           string           `json:"doctorName"`
	DoctorSpecialization string           `json:"doctorSpecialization"`
	Type                 string           `json:"appointmentType"`
	Date                 string           `json:"date"`
	Time                 string           `json:"time"`
	Duration             int              `json:"duration"`
	Reason               string           `json:"reason"`
	Symptoms             string           `json:"symptoms"`
	ConsultationType     ConsultationType `json:"consultationType"`
	Priority             Priority         `json:"priority"`
}

// Update is a partial edit; nil fields are left unchanged. Status is not editable here.
type Update struct {
	Reason           *string           `json:"reason,omitempty"`
	Symptoms         *string           `json:"symptoms,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
	Diagnosis        *string           `json:"diagnosis,omitempty"`
	Prescription     *string           `json:"prescription,omitempty"`
	ConsultationType *ConsultationType `json:"consultationType,omitempty"`
	Priority         *Priority         `json:"priority,omitempty"`
	PatientPhone     *string           `json:"patientPhone,omitempty"`
	PatientEmail     *string           `json:"patientEmail,omitempty"`
}

func (u Update) apply(a *Appointment) {
	if u.Reason != nil {
		a.Reason = *u.Reason
	}
	if u.Symptoms != nil {
		a.Symptoms = *u.Symptoms
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.Diagnosis != nil {
		a.Diagnosis = *u.Diagnosis
	}
	if u.Prescription != nil {
		a.Prescription = *u.Prescription
	}
	if u.ConsultationType != nil {
		a.ConsultationType = *u.ConsultationType
	}
	if u.Priority != nil {
		a.Priority = *u.Priority
	}
	if u.PatientPhone != nil {
		a.PatientPhone = *u.PatientPhone
	}
	if u.PatientEmail != nil {
		a.PatientEmail = *u.PatientEmail
	}
}

// StatusFilter selects appointments by status; empty or "all" matches everything.
type StatusFilter string

const FilterAll StatusFilter = "all"

func (f StatusFilter) match(s Status) bool {
	return f == "" || f == FilterAll || Status(f) == s
}

type Stats struct {
	Total              int    `json:"total"`
	Scheduled          int    `json:"scheduled"`
	Completed          int    `json:"completed"`
	Cancelled          int    `json:"cancelled"`
	TodaysAppointments int    `json:"todaysAppointments"`
	CompletionRate     string `json:"completionRate"`
}

// DaySchedule summarises one doctor's day.
type DaySchedule struct {
	Date           string `json:"date"`
	AvailableSlots int    `json:"availableSlots"`
	TotalSlots     int    `json:"totalSlots"`
	Appointments   []View `json:"appointments"`
}
