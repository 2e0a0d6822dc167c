// Package pharmacy reconciles the order ledger with per-pharmacy inventory.
// Stock is only committed when an order is approved and never goes negative.
package pharmacy

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/care-coordination/internal/authz"
	"github.com/hackgods/care-coordination/internal/clock"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/lock"
	"github.com/hackgods/care-coordination/internal/notify"
)

type Config struct {
	SeedOnEmpty bool
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	cfg      Config
	policy   authz.Policy
	notifier notify.Notifier
	clock    clock.Clock
	logger   zerolog.Logger
}

type Option func(*Service)

func WithPolicy(p authz.Policy) Option { return func(s *Service) { s.policy = p } }

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, locker lock.Locker, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		cfg:      cfg,
		policy:   authz.OwnerPolicy{},
		notifier: notify.Nop{},
		clock:    clock.Real(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load seeds whichever of the two tables has never been stored.
func (s *Service) Load(ctx context.Context) error {
	keys := []string{kv.KeyOrders, kv.KeyInventory}
	return lock.WithKeys(ctx, s.locker, keys, func(ctx context.Context) error {
		orders, foundOrders, err := s.repo.LoadOrders(ctx)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		inventory, foundInventory, err := s.repo.LoadInventory(ctx)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		if foundOrders && foundInventory {
			return nil
		}

		now := s.clock.Now()
		if !foundOrders && s.cfg.SeedOnEmpty {
			orders = mockOrders(now)
		}
		if !foundInventory && s.cfg.SeedOnEmpty {
			inventory = mockInventory(now)
		}
		if err := s.repo.SaveAll(ctx, orders, inventory); err != nil {
			return fmt.Errorf("save loaded tables: %w", err)
		}
		s.logger.Info().
			Int("orders", len(orders)).
			Int("inventory", len(inventory)).
			Msg("pharmacy tables loaded")
		return nil
	})
}

// PlaceOrder records a pending order. Missing names and prices are taken
// from the pharmacy's inventory.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.PatientID == "" {
		return nil, invalid("patientId is required")
	}
	if req.PharmacyID == "" {
		return nil, invalid("pharmacyId is required")
	}
	if len(req.Items) == 0 {
		return nil, invalid("order has no items")
	}
	if req.OrderType == "" {
		req.OrderType = TypeOTC
		if req.PrescriptionID != "" {
			req.OrderType = TypePrescription
		}
	}
	if req.OrderType != TypeOTC && req.OrderType != TypePrescription {
		return nil, invalid("unknown order type %q", req.OrderType)
	}

	inventory, _, err := s.repo.LoadInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	items := make([]LineItem, len(req.Items))
	units := make(map[string]int, len(req.Items))
	total := decimal.Zero
	for i, it := range req.Items {
		if it.MedicationID == "" {
			return nil, invalid("item %d has no medicationId", i)
		}
		if it.Quantity <= 0 {
			return nil, invalid("item %s quantity must be positive", it.MedicationID)
		}
		if it.Quantity > MaxOrderQuantity || units[it.MedicationID] > MaxOrderQuantity-it.Quantity {
			return nil, invalid("item %s quantity exceeds %d per order", it.MedicationID, MaxOrderQuantity)
		}
		units[it.MedicationID] += it.Quantity
		if it.UnitPrice.IsNegative() {
			return nil, invalid("item %s price must not be negative", it.MedicationID)
		}
		if j := itemIndexFor(inventory, req.PharmacyID, it.MedicationID); j >= 0 {
			if it.Name == "" {
				it.Name = inventory[j].Name
			}
			if it.UnitPrice.IsZero() {
				it.UnitPrice = inventory[j].UnitPrice
			}
		}
		if it.Name == "" {
			it.Name = it.MedicationID
		}
		it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(it.TotalPrice)
		items[i] = it
	}

	now := s.clock.Now()
	order := Order{
		ID:              "ORD-" + uuid.NewString(),
		PatientID:       req.PatientID,
		PatientName:     req.PatientName,
		DoctorID:        req.DoctorID,
		DoctorName:      req.DoctorName,
		PharmacyID:      req.PharmacyID,
		Items:           items,
		TotalAmount:     total,
		Status:          StatusPending,
		OrderType:       req.OrderType,
		PrescriptionID:  req.PrescriptionID,
		DeliveryAddress: req.DeliveryAddress,
		ContactNumber:   req.ContactNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.locker.WithLock(ctx, kv.KeyOrders, func(ctx context.Context) error {
		orders, _, err := s.repo.LoadOrders(ctx)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		if err := s.repo.SaveOrders(ctx, append(orders, order)); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("pharmacy_id", order.PharmacyID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order placed")
	s.dispatch(ctx, notify.Notification{
		RecipientID: order.PharmacyID,
		Type:        notify.TypePharmacy,
		Title:       "New order",
		Message:     fmt.Sprintf("%s placed an order for %d item(s)", order.PatientName, len(order.Items)),
		Data:        map[string]string{"orderId": order.ID},
	})
	return &order, nil
}

// ListOrders returns the pharmacy's orders newest first. An empty
// pharmacyID lists every order.
func (s *Service) ListOrders(ctx context.Context, pharmacyID string, filter StatusFilter) ([]Order, error) {
	return s.orders(ctx, func(o Order) bool {
		return (pharmacyID == "" || o.PharmacyID == pharmacyID) && filter.match(o.Status)
	})
}

func (s *Service) PendingOrders(ctx context.Context, pharmacyID string) ([]Order, error) {
	return s.ListOrders(ctx, pharmacyID, StatusFilter(StatusPending))
}

func (s *Service) PatientOrders(ctx context.Context, patientID string) ([]Order, error) {
	return s.orders(ctx, func(o Order) bool { return o.PatientID == patientID })
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	orders, _, err := s.repo.LoadOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	i := orderIndex(orders, id)
	if i < 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[i], nil
}

// CheckAvailability reports the items pharmacyID cannot cover from stock.
func (s *Service) CheckAvailability(ctx context.Context, items []LineItem, pharmacyID string) (Availability, error) {
	inventory, _, err := s.repo.LoadInventory(ctx)
	if err != nil {
		return Availability{}, fmt.Errorf("load inventory: %w", err)
	}
	return checkAvailability(inventory, items, pharmacyID), nil
}

// Approve commits stock for a pending order. Either the order is approved
// and every line is subtracted from inventory, or nothing changes.
func (s *Service) Approve(ctx context.Context, orderID, pharmacyID, notes string) (*Order, error) {
	actor := authz.Actor{ID: pharmacyID, Role: authz.RolePharmacy}
	keys := []string{kv.KeyOrders, kv.KeyInventory}

	var approved Order
	err := lock.WithKeys(ctx, s.locker, keys, func(ctx context.Context) error {
		orders, _, err := s.repo.LoadOrders(ctx)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		i := orderIndex(orders, orderID)
		if i < 0 {
			return ErrOrderNotFound
		}
		order := orders[i]
		if err := s.policy.Authorize(actor, order.Ownership()); err != nil {
			return err
		}
		if order.Status != StatusPending {
			return &TransitionError{ID: orderID, From: order.Status, To: StatusApproved}
		}

		inventory, _, err := s.repo.LoadInventory(ctx)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		if av := checkAvailability(inventory, order.Items, order.PharmacyID); !av.Available {
			return &InsufficientStockError{OrderID: orderID, MissingItems: av.MissingItems}
		}

		now := s.clock.Now()
		for _, it := range order.Items {
			j := itemIndexFor(inventory, order.PharmacyID, it.MedicationID)
			inventory[j].Quantity = max(0, inventory[j].Quantity-it.Quantity)
			inventory[j].UpdatedAt = now
		}

		delivery := now.AddDate(0, 0, gofakeit.Number(1, 3))
		order.Status = StatusApproved
		order.ApprovedAt = &now
		order.UpdatedAt = now
		order.PharmacyNotes = notes
		order.EstimatedDelivery = &delivery
		orders[i] = order

		if err := s.repo.SaveAll(ctx, orders, inventory); err != nil {
			return fmt.Errorf("save approval: %w", err)
		}
		approved = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", orderID).
		Str("pharmacy_id", pharmacyID).
		Msg("order approved")
	s.dispatch(ctx, notify.Notification{
		RecipientID: approved.PatientID,
		Type:        notify.TypePharmacy,
		Title:       "Order approved",
		Message:     fmt.Sprintf("Your order is expected by %s", approved.EstimatedDelivery.Format(DateLayout)),
		Data:        map[string]string{"orderId": approved.ID},
	})
	return &approved, nil
}

// Reject closes a pending order without touching inventory. With
// ReasonOther the custom text becomes the reason.
func (s *Service) Reject(ctx context.Context, orderID, pharmacyID, reasonCode, customReason string) (*Order, error) {
	reason := reasonCode
	if reasonCode == ReasonOther {
		reason = customReason
	}
	if reason == "" {
		return nil, invalid("a rejection reason is required")
	}
	actor := authz.Actor{ID: pharmacyID, Role: authz.RolePharmacy}

	var rejected Order
	err := s.locker.WithLock(ctx, kv.KeyOrders, func(ctx context.Context) error {
		orders, _, err := s.repo.LoadOrders(ctx)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		i := orderIndex(orders, orderID)
		if i < 0 {
			return ErrOrderNotFound
		}
		order := orders[i]
		if err := s.policy.Authorize(actor, order.Ownership()); err != nil {
			return err
		}
		if order.Status != StatusPending {
			return &TransitionError{ID: orderID, From: order.Status, To: StatusRejected}
		}

		now := s.clock.Now()
		order.Status = StatusRejected
		order.RejectedAt = &now
		order.UpdatedAt = now
		order.RejectionReason = reason
		order.PharmacyNotes = "Rejected: " + reason
		orders[i] = order

		if err := s.repo.SaveOrders(ctx, orders); err != nil {
			return fmt.Errorf("save rejection: %w", err)
		}
		rejected = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", orderID).
		Str("reason", reason).
		Msg("order rejected")
	s.dispatch(ctx, notify.Notification{
		RecipientID: rejected.PatientID,
		Type:        notify.TypePharmacy,
		Priority:    notify.PriorityHigh,
		Title:       "Order rejected",
		Message:     reason,
		Data:        map[string]string{"orderId": rejected.ID},
	})
	return &rejected, nil
}

// RejectionReasons lists the reason codes Reject understands.
func (s *Service) RejectionReasons() []string {
	return slices.Clone(rejectionReasons)
}

func (s *Service) orders(ctx context.Context, keep func(Order) bool) ([]Order, error) {
	orders, _, err := s.repo.LoadOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	out := make([]Order, 0)
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if n.RecipientID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).
			Str("recipient_id", n.RecipientID).
			Str("title", n.Title).
			Msg("failed to dispatch notification")
	}
}

// checkAvailability sums demand per medication so an order listing the
// same medication twice is checked against its combined quantity. The sum
// saturates at math.MaxInt.
func checkAvailability(inventory []InventoryItem, items []LineItem, pharmacyID string) Availability {
	demand := make(map[string]int, len(items))
	for _, it := range items {
		demand[it.MedicationID] = addDemand(demand[it.MedicationID], it.Quantity)
	}

	missing := make([]string, 0)
	reported := make(map[string]bool)
	for _, it := range items {
		if reported[it.MedicationID] {
			continue
		}
		j := itemIndexFor(inventory, pharmacyID, it.MedicationID)
		if j < 0 || inventory[j].Quantity < demand[it.MedicationID] {
			missing = append(missing, missingName(it, inventory, j))
			reported[it.MedicationID] = true
		}
	}
	return Availability{Available: len(missing) == 0, MissingItems: missing}
}

func addDemand(sum, qty int) int {
	if qty <= 0 {
		return sum
	}
	if sum > math.MaxInt-qty {
		return math.MaxInt
	}
	return sum + qty
}

// missingName prefers the line's name, then the stock row's, then the id.
func missingName(it LineItem, inventory []InventoryItem, j int) string {
	switch {
	case it.Name != "":
		return it.Name
	case j >= 0 && inventory[j].Name != "":
		return inventory[j].Name
	default:
		return it.MedicationID
	}
}

func orderIndex(orders []Order, id string) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func itemIndexFor(inventory []InventoryItem, pharmacyID, medicationID string) int {
	for i := range inventory {
		if inventory[i].PharmacyID == pharmacyID && inventory[i].MedicationID == medicationID {
			return i
		}
	}
	return -1
}

func itemIndex(inventory []InventoryItem, id, pharmacyID string) int {
	for i := range inventory {
		if inventory[i].ID == id && inventory[i].PharmacyID == pharmacyID {
			return i
		}
	}
	return -1
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
