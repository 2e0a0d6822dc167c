package pharmacy

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// SeedPharmacyID owns the seeded inventory and orders.
const SeedPharmacyID = "3"

type medication struct {
	id, name, generic, manufacturer, form, strength, price string
	rx                                                     bool
}

var seedMedications = []medication{
	{"1", "Aspirin", "Acetylsalicylic Acid", "Bayer", "Tablet", "325mg", "12.99", false},
	{"2", "Amoxicillin", "Amoxicillin", "Pfizer", "Capsule", "500mg", "24.50", true},
	{"3", "Ibuprofen", "Ibuprofen", "Advil", "Tablet", "200mg", "8.99", false},
}

// mockInventory stocks the seed pharmacy with random quantities (20-119)
// and expiry dates within the next year.
func mockInventory(now time.Time) []InventoryItem {
	out := make([]InventoryItem, len(seedMedications))
	for i, m := range seedMedications {
		out[i] = InventoryItem{
			ID:                   fmt.Sprintf("inv_%d", i+1),
			PharmacyID:           SeedPharmacyID,
			MedicationID:         m.id,
			Name:                 m.name,
			GenericName:          m.generic,
			Manufacturer:         m.manufacturer,
			DosageForm:           m.form,
			Strength:             m.strength,
			Quantity:             gofakeit.Number(20, 119),
			UnitPrice:            decimal.RequireFromString(m.price),
			MinimumStock:         DefaultMinimumStock,
			ExpiryDate:           now.AddDate(0, 0, gofakeit.Number(1, 365)).Format(DateLayout),
			BatchNumber:          fmt.Sprintf("BATCH%d", 1000+i),
			Category:             "Oral",
			PrescriptionRequired: m.rx,
			AddedAt:              now,
			UpdatedAt:            now,
		}
	}
	return out
}

func mockOrders(now time.Time) []Order {
	line := func(medID, name string, qty int, price string) LineItem {
		unit := decimal.RequireFromString(price)
		return LineItem{
			MedicationID: medID,
			Name:         name,
			Quantity:     qty,
			UnitPrice:    unit,
			TotalPrice:   unit.Mul(decimal.NewFromInt(int64(qty))),
		}
	}
	aspirin := line("1", "Aspirin", 1, "12.99")
	ibuprofen := line("3", "Ibuprofen", 2, "8.99")

	return []Order{
		{
			ID:              "ORD001",
			PatientID:       "2",
			PatientName:     "Jane Doe",
			DoctorID:        "1",
			DoctorName:      "Dr. John Smith",
			PharmacyID:      SeedPharmacyID,
			Items:           []LineItem{aspirin},
			TotalAmount:     aspirin.TotalPrice,
			Status:          StatusPending,
			OrderType:       TypePrescription,
			PrescriptionID:  "RX001",
			DeliveryAddress: "123 Main St, City, State 12345",
			ContactNumber:   "+1234567891",
			CreatedAt:       now.Add(-2 * time.Hour),
			UpdatedAt:       now.Add(-2 * time.Hour),
		},
		{
			ID:              "ORD002",
			PatientID:       "2",
			PatientName:     "Jane Doe",
			PharmacyID:      SeedPharmacyID,
			Items:           []LineItem{ibuprofen},
			TotalAmount:     ibuprofen.TotalPrice,
			Status:          StatusPending,
			OrderType:       TypeOTC,
			DeliveryAddress: "123 Main St, City, State 12345",
			ContactNumber:   "+1234567891",
			CreatedAt:       now.Add(-4 * time.Hour),
			UpdatedAt:       now.Add(-4 * time.Hour),
		},
	}
}
