package appointment

import "time"

// mockAppointments is the ledger a fresh install starts with.
func mockAppointments(now time.Time) []Appointment {
	tomorrow := now.AddDate(0, 0, 1).Format(DateLayout)
	return []Appointment{
		{
			ID:                   "APT001",
			PatientID:            "2",
			PatientName:          "Jane Doe",
			PatientPhone:         "+1 555 0102",
			PatientEmail:         "jane.doe@example.com",
			DoctorID:             "1",
			DoctorName:           "Dr. John Smith",
			DoctorSpecialization: "General Medicine",
			Type:                 "General Consultation",
			Date:                 tomorrow,
			Time:                 "10:00",
			Duration:             DefaultDuration,
			Reason:               "Regular check-up",
			Symptoms:             "None",
			ConsultationType:     ConsultationInPerson,
			Priority:             PriorityNormal,
			Status:               StatusScheduled,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}
}
