package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/bootstrap"
	"github.com/hackgods/care-coordination/internal/config"
	"github.com/hackgods/care-coordination/internal/pharmacy"
)

func main() {
	cfg, err := config.Load()
	logger := bootstrap.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().Str("store", cfg.StoreBackend).Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend connection error")
	}
	defer backends.Close()

	services := bootstrap.NewServices(backends, cfg, logger)
	if err := services.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initial load failed")
	}

	if _, err := services.Appointments.GenerateSlots(ctx, cfg.SlotProviderIDs, cfg.SlotHorizonDays, cfg.SlotTimes); err != nil {
		logger.Fatal().Err(err).Msg("generate slots")
	}
	if err := seedAppointments(ctx, logger, services.Appointments, cfg.SlotProviderIDs, getInt("SEED_APPOINTMENTS", 50)); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}
	if err := seedPharmacy(ctx, logger, services.Pharmacy, getEnv("SEED_PHARMACY_ID", pharmacy.SeedPharmacyID), getInt("SEED_ORDERS", 20)); err != nil {
		logger.Fatal().Err(err).Msg("seed pharmacy")
	}

	logger.Info().Msg("seed complete")
}

func seedAppointments(ctx context.Context, logger zerolog.Logger, svc *appointment.Service, doctorIDs []string, count int) error {
	logger.Info().Int("count", count).Msg("seeding appointments")

	types := svc.Types()
	booked := 0
	for day := 0; day < 14 && booked < count; day++ {
		date := time.Now().AddDate(0, 0, day).Format(appointment.DateLayout)
		for _, doctorID := range doctorIDs {
			times, err := svc.AvailableSlots(ctx, doctorID, date)
			if err != nil {
				return err
			}
			for _, t := range times {
				if booked >= count {
					break
				}
				// leave roughly half the slots open
				if gofakeit.Number(0, 1) == 0 {
					continue
				}
				_, err := svc.Book(ctx, appointment.BookingRequest{
					PatientID:    "patient-" + strconv.Itoa(gofakeit.Number(1000, 9999)),
					PatientName:  gofakeit.Name(),
					PatientPhone: gofakeit.Phone(),
					PatientEmail: gofakeit.Email(),
					DoctorID:     doctorID,
					Type:         types[gofakeit.Number(0, len(types)-1)],
					Date:         date,
					Time:         t,
					Reason:       visitReasons[gofakeit.Number(0, len(visitReasons)-1)],
				})
				var unavailable *appointment.SlotUnavailableError
				if errors.As(err, &unavailable) {
					continue
				}
				if err != nil {
					return err
				}
				booked++
			}
		}
	}

	logger.Info().Int("booked", booked).Msg("appointments seeded")
	return nil
}

var visitReasons = []string{
	"Annual checkup",
	"Persistent headache",
	"Follow-up on lab results",
	"Medication review",
	"Back pain",
	"Skin rash",
}

var catalog = []struct {
	name, generic, form, strength, category string
	price                                   string
	rx                                      bool
}{
	{"Metformin", "Metformin Hydrochloride", "Tablet", "500mg", "Diabetes", "9.75", true},
	{"Lisinopril", "Lisinopril", "Tablet", "10mg", "Cardiovascular", "11.20", true},
	{"Cetirizine", "Cetirizine Hydrochloride", "Tablet", "10mg", "Allergy", "6.49", false},
	{"Omeprazole", "Omeprazole", "Capsule", "20mg", "Gastrointestinal", "14.30", false},
	{"Salbutamol", "Albuterol Sulfate", "Inhaler", "100mcg", "Respiratory", "18.90", true},
	{"Paracetamol", "Acetaminophen", "Tablet", "500mg", "Pain Relief", "4.99", false},
}

func seedPharmacy(ctx context.Context, logger zerolog.Logger, svc *pharmacy.Service, pharmacyID string, orders int) error {
	logger.Info().Str("pharmacy_id", pharmacyID).Int("items", len(catalog)).Msg("seeding inventory")

	stocked := make([]pharmacy.InventoryItem, 0, len(catalog))
	for i, c := range catalog {
		item, err := svc.AddItem(ctx, pharmacyID, pharmacy.InventoryItem{
			MedicationID:         "med_seed_" + strconv.Itoa(i+1),
			Name:                 c.name,
			GenericName:          c.generic,
			Manufacturer:         gofakeit.Company(),
			DosageForm:           c.form,
			Strength:             c.strength,
			Quantity:             gofakeit.Number(5, 150),
			UnitPrice:            decimal.RequireFromString(c.price),
			ExpiryDate:           time.Now().AddDate(0, 0, gofakeit.Number(7, 540)).Format(pharmacy.DateLayout),
			Category:             c.category,
			PrescriptionRequired: c.rx,
		})
		if err != nil {
			return err
		}
		stocked = append(stocked, *item)
	}

	logger.Info().Int("count", orders).Msg("seeding orders")
	for i := 0; i < orders; i++ {
		item := stocked[gofakeit.Number(0, len(stocked)-1)]
		req := pharmacy.OrderRequest{
			PatientID:       "patient-" + strconv.Itoa(gofakeit.Number(1000, 9999)),
			PatientName:     gofakeit.Name(),
			PharmacyID:      pharmacyID,
			Items:           []pharmacy.LineItem{{MedicationID: item.MedicationID, Quantity: gofakeit.Number(1, 4)}},
			DeliveryAddress: gofakeit.Street() + ", " + gofakeit.City(),
			ContactNumber:   gofakeit.Phone(),
		}
		if item.PrescriptionRequired {
			req.PrescriptionID = "RX-" + strconv.Itoa(gofakeit.Number(10000, 99999))
		}
		if _, err := svc.PlaceOrder(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
