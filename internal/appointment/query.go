package appointment

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hackgods/care-coordination/internal/authz"
)

// maxScheduleDays bounds a Schedule range.
const maxScheduleDays = 366

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	appts, err := s.appointments(ctx)
	if err != nil {
		return nil, err
	}
	i := appointmentIndex(appts, id)
	if i < 0 {
		return nil, ErrAppointmentNotFound
	}
	v := newView(appts[i], s.clock.Now())
	return &v, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, filter StatusFilter) ([]View, error) {
	return s.list(ctx, func(a Appointment) bool {
		return a.PatientID == patientID && filter.match(a.Status)
	})
}

// ListByDoctor filters by date as well when date is not empty.
func (s *Service) ListByDoctor(ctx context.Context, doctorID, date string, filter StatusFilter) ([]View, error) {
	return s.list(ctx, func(a Appointment) bool {
		return a.DoctorID == doctorID && (date == "" || a.Date == date) && filter.match(a.Status)
	})
}

// Search matches query case-insensitively against patient name, doctor
// name, type and reason, within the appointments the actor is party to.
func (s *Service) Search(ctx context.Context, query string, actor authz.Actor) ([]View, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return s.list(ctx, func(a Appointment) bool {
		if !inScope(a, actor) {
			return false
		}
		if q == "" {
			return true
		}
		for _, field := range []string{a.PatientName, a.DoctorName, a.Type, a.Reason} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	})
}

// Stats counts the actor's appointments. completionRate is a percentage
// with one decimal place.
func (s *Service) Stats(ctx context.Context, actor authz.Actor) (Stats, error) {
	appts, err := s.appointments(ctx)
	if err != nil {
		return Stats{}, err
	}

	today := s.clock.Now().Format(DateLayout)
	var st Stats
	for _, a := range appts {
		if !inScope(a, actor) {
			continue
		}
		st.Total++
		switch a.Status {
		case StatusScheduled:
			st.Scheduled++
		case StatusCompleted:
			st.Completed++
		case StatusCancelled:
			st.Cancelled++
		}
		if a.Date == today {
			st.TodaysAppointments++
		}
	}

	rate := decimal.Zero
	if st.Total > 0 {
		rate = decimal.NewFromInt(int64(st.Completed * 100)).Div(decimal.NewFromInt(int64(st.Total)))
	}
	st.CompletionRate = rate.StringFixed(1)
	return st, nil
}

// AvailableSlots returns the doctor's free slot times on date, in order.
func (s *Service) AvailableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, invalid("date %q must be YYYY-MM-DD", date)
	}
	slots, _, err := s.repo.LoadSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	out := make([]string, 0)
	for _, sl := range slots {
		if sl.DoctorID == doctorID && sl.Date == date && sl.Available {
			out = append(out, sl.Time)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Schedule summarises each day in [from, to] for one doctor.
func (s *Service) Schedule(ctx context.Context, doctorID, from, to string) ([]DaySchedule, error) {
	start, err := time.Parse(DateLayout, from)
	if err != nil {
		return nil, invalid("from %q must be YYYY-MM-DD", from)
	}
	end, err := time.Parse(DateLayout, to)
	if err != nil {
		return nil, invalid("to %q must be YYYY-MM-DD", to)
	}
	if end.Before(start) {
		return nil, invalid("range ends before it starts")
	}
	if end.Sub(start) > maxScheduleDays*24*time.Hour {
		return nil, invalid("range exceeds %d days", maxScheduleDays)
	}

	appts, err := s.appointments(ctx)
	if err != nil {
		return nil, err
	}
	slots, _, err := s.repo.LoadSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	now := s.clock.Now()
	days := make([]DaySchedule, 0)
	index := make(map[string]int)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		index[date] = len(days)
		days = append(days, DaySchedule{Date: date, Appointments: make([]View, 0)})
	}

	for _, sl := range slots {
		i, ok := index[sl.Date]
		if !ok || sl.DoctorID != doctorID {
			continue
		}
		days[i].TotalSlots++
		if sl.Available {
			days[i].AvailableSlots++
		}
	}

	sortChronologically(appts)
	for _, a := range appts {
		i, ok := index[a.Date]
		if !ok || a.DoctorID != doctorID || a.Status != StatusScheduled {
			continue
		}
		days[i].Appointments = append(days[i].Appointments, newView(a, now))
	}
	return days, nil
}

// Types returns the bookable appointment types.
func (s *Service) Types() []string {
	return slices.Clone(Types)
}

func (s *Service) list(ctx context.Context, keep func(Appointment) bool) ([]View, error) {
	appts, err := s.appointments(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]Appointment, 0)
	for _, a := range appts {
		if keep(a) {
			matched = append(matched, a)
		}
	}
	sortChronologically(matched)

	now := s.clock.Now()
	out := make([]View, len(matched))
	for i, a := range matched {
		out[i] = newView(a, now)
	}
	return out, nil
}

func (s *Service) appointments(ctx context.Context) ([]Appointment, error) {
	appts, _, err := s.repo.LoadAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return appts, nil
}

// inScope reports whether actor is a party to a. Roles without a ledger
// of their own see nothing.
func inScope(a Appointment, actor authz.Actor) bool {
	switch actor.Role {
	case authz.RolePatient:
		return a.PatientID == actor.ID
	case authz.RoleDoctor:
		return a.DoctorID == actor.ID
	}
	return false
}

// sortChronologically orders by date then time. Both layouts sort lexically.
func sortChronologically(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
}
