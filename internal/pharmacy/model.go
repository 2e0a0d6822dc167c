package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hackgods/care-coordination/internal/authz"
)

const (
	DateLayout = "2006-01-02"

	DefaultMinimumStock = 10
	DefaultExpiryWindow = 30 // days

	// MaxOrderQuantity caps the units of one medication in a single order.
	MaxOrderQuantity = 10000
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusApproved OrderStatus = "approved"
	StatusRejected OrderStatus = "rejected"
)

type OrderType string

const (
	TypePrescription OrderType = "prescription"
	TypeOTC          OrderType = "otc"
)

// ReasonOther is the rejection reason that takes free text instead.
const ReasonOther = "Other (specify)"

var rejectionReasons = []string{
	"Out of stock",
	"Invalid prescription",
	"Expired prescription",
	"Dosage concerns",
	"Drug interaction warning",
	"Patient allergy concerns",
	"Insurance coverage issue",
	"Quantity exceeds limit",
	"Requires prior authorization",
	ReasonOther,
}

type LineItem struct {
	MedicationID string          `json:"medicationId"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
}

type Order struct {
	ID                string          `json:"id"`
	PatientID         string          `json:"patientId"`
	PatientName       string          `json:"patientName"`
	DoctorID          string          `json:"doctorId,omitempty"`
	DoctorName        string          `json:"doctorName,omitempty"`
	PharmacyID        string          `json:"pharmacyId"`
	Items             []LineItem      `json:"items"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	Status            OrderStatus     `json:"status"`
	OrderType         OrderType       `json:"orderType"`
	PrescriptionID    string          `json:"prescriptionId,omitempty"`
	DeliveryAddress   string          `json:"deliveryAddress,omitempty"`
	ContactNumber     string          `json:"contactNumber,omitempty"`
	PharmacyNotes     string          `json:"pharmacyNotes,omitempty"`
	RejectionReason   string          `json:"rejectionReason,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
	RejectedAt        *time.Time      `json:"rejectedAt,omitempty"`
}

func (o Order) Ownership() authz.Ownership {
	return authz.Ownership{RequesterID: o.PatientID, ProviderID: o.PharmacyID}
}

// InventoryItem is one stock row, unique per (PharmacyID, MedicationID).
type InventoryItem struct {
	ID                   string          `json:"id"`
	PharmacyID           string          `json:"pharmacyId"`
	MedicationID         string          `json:"medicationId"`
	Name                 string          `json:"name"`
	GenericName          string          `json:"genericName"`
	Manufacturer         string          `json:"manufacturer"`
	DosageForm           string          `json:"dosageForm"`
	Strength             string          `json:"strength"`
	Quantity             int             `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unitPrice"`
	MinimumStock         int             `json:"minimumStock"`
	ExpiryDate           string          `json:"expiryDate,omitempty"`
	BatchNumber          string          `json:"batchNumber"`
	Category             string          `json:"category"`
	PrescriptionRequired bool            `json:"prescriptionRequired"`
	AddedAt              time.Time       `json:"addedAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func (i InventoryItem) lowStock() bool { return i.Quantity <= i.MinimumStock }

// OrderRequest is what a patient submits. Line totals are computed on placement.
type OrderRequest struct {
	PatientID       string     `json:"patientId"`
	PatientName     string     `json:"patientName"`
	DoctorID        string     `json:"doctorId"`
	DoctorName      string     `json:"doctorName"`
	PharmacyID      string     `json:"pharmacyId"`
	Items           []LineItem `json:"items"`
	OrderType       OrderType  `json:"orderType"`
	PrescriptionID  string     `json:"prescriptionId"`
	DeliveryAddress string     `json:"deliveryAddress"`
	ContactNumber   string     `json:"contactNumber"`
}

// ItemUpdate is a partial inventory edit; nil fields are left unchanged.
type ItemUpdate struct {
	Name                 *string          `json:"name,omitempty"`
	GenericName          *string          `json:"genericName,omitempty"`
	Manufacturer         *string          `json:"manufacturer,omitempty"`
	DosageForm           *string          `json:"dosageForm,omitempty"`
	Strength             *string          `json:"strength,omitempty"`
	Quantity             *int             `json:"quantity,omitempty"`
	UnitPrice            *decimal.Decimal `json:"unitPrice,omitempty"`
	MinimumStock         *int             `json:"minimumStock,omitempty"`
	ExpiryDate           *string          `json:"expiryDate,omitempty"`
	BatchNumber          *string          `json:"batchNumber,omitempty"`
	Category             *string          `json:"category,omitempty"`
	PrescriptionRequired *bool            `json:"prescriptionRequired,omitempty"`
}

func (u ItemUpdate) apply(i *InventoryItem) {
	setString(&i.Name, u.Name)
	setString(&i.GenericName, u.GenericName)
	setString(&i.Manufacturer, u.Manufacturer)
	setString(&i.DosageForm, u.DosageForm)
	setString(&i.Strength, u.Strength)
	setString(&i.ExpiryDate, u.ExpiryDate)
	setString(&i.BatchNumber, u.BatchNumber)
	setString(&i.Category, u.Category)
	if u.Quantity != nil {
		i.Quantity = *u.Quantity
	}
	if u.UnitPrice != nil {
		i.UnitPrice = *u.UnitPrice
	}
	if u.MinimumStock != nil {
		i.MinimumStock = *u.MinimumStock
	}
	if u.PrescriptionRequired != nil {
		i.PrescriptionRequired = *u.PrescriptionRequired
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Availability is the result of a stock check.
type Availability struct {
	Available    bool     `json:"available"`
	MissingItems []string `json:"missingItems"`
}

// StatusFilter selects orders by status; empty or "all" matches everything.
type StatusFilter string

const FilterAll StatusFilter = "all"

func (f StatusFilter) match(s OrderStatus) bool {
	return f == "" || f == FilterAll || OrderStatus(f) == s
}

type Analytics struct {
	TotalOrders         int    `json:"totalOrders"`
	PendingOrders       int    `json:"pendingOrders"`
	ApprovedOrders      int    `json:"approvedOrders"`
	RejectedOrders      int    `json:"rejectedOrders"`
	ApprovalRate        string `json:"approvalRate"`
	TotalRevenue        string `json:"totalRevenue"`
	TotalInventoryItems int    `json:"totalInventoryItems"`
	LowStockItemsCount  int    `json:"lowStockItemsCount"`
	ExpiringItemsCount  int    `json:"expiringItemsCount"`
}
