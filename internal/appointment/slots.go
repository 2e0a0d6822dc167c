package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/care-coordination/internal/lock"
)

// GenerateSlots adds weekday slots for every doctor from today through
// horizonDays. Existing slots are kept as they are, so running it twice
// adds nothing. It returns the number of slots added.
func (s *Service) GenerateSlots(ctx context.Context, doctorIDs []string, horizonDays int, times []string) (int, error) {
	if horizonDays <= 0 {
		return 0, invalid("horizon must be at least one day")
	}
	for _, t := range times {
		if _, err := time.Parse(TimeLayout, t); err != nil {
			return 0, invalid("slot time %q must be HH:MM", t)
		}
	}

	added := 0
	err := lock.WithKeys(ctx, s.locker, lockKeys, func(ctx context.Context) error {
		appts, _, err := s.repo.LoadAppointments(ctx)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		slots, _, err := s.repo.LoadSlots(ctx)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}

		slots, added = mergeSlots(slots, buildSlots(s.clock.Now(), doctorIDs, horizonDays, times))
		if added == 0 {
			return nil
		}
		// a new slot may already have a booking recorded against it
		reconcile(appts, slots)
		if err := s.repo.SaveSlots(ctx, slots); err != nil {
			return fmt.Errorf("save slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("added", added).
		Int("doctors", len(doctorIDs)).
		Int("horizon_days", horizonDays).
		Msg("slots generated")
	return added, nil
}

// buildSlots lists available weekday slots starting on now's calendar date.
func buildSlots(now time.Time, doctorIDs []string, horizonDays int, times []string) []Slot {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := make([]Slot, 0, len(doctorIDs)*horizonDays*len(times))
	for d := 0; d < horizonDays; d++ {
		day := start.AddDate(0, 0, d)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		date := day.Format(DateLayout)
		for _, doctorID := range doctorIDs {
			for _, t := range times {
				out = append(out, Slot{
					Key:       SlotKey(doctorID, date, t),
					DoctorID:  doctorID,
					Date:      date,
					Time:      t,
					Available: true,
				})
			}
		}
	}
	return out
}

// mergeSlots appends generated slots whose key is not present yet.
func mergeSlots(existing, generated []Slot) ([]Slot, int) {
	seen := make(map[string]struct{}, len(existing))
	for _, sl := range existing {
		seen[sl.Key] = struct{}{}
	}
	added := 0
	for _, sl := range generated {
		if _, ok := seen[sl.Key]; ok {
			continue
		}
		seen[sl.Key] = struct{}{}
		existing = append(existing, sl)
		added++
	}
	return existing, added
}

// reconcile makes every slot agree with the ledger: a slot is unavailable
// exactly when a scheduled or completed appointment holds it. It reports
// whether any slot changed.
func reconcile(appts []Appointment, slots []Slot) bool {
	holder := make(map[string]string, len(appts))
	for _, a := range appts {
		if a.Status != StatusCancelled {
			holder[a.SlotKey()] = a.ID
		}
	}

	changed := false
	for i := range slots {
		id, held := holder[slots[i].Key]
		if slots[i].Available == !held && slots[i].AppointmentID == id {
			continue
		}
		slots[i].Available = !held
		slots[i].AppointmentID = id
		changed = true
	}
	return changed
}
