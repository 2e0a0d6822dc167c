package pharmacy

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/care-coordination/internal/clock"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/lock"
	"github.com/hackgods/care-coordination/internal/notify"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, seed bool, opts ...Option) (*Service, *KVRepository) {
	t.Helper()
	repo := NewKVRepository(kv.NewMemory())
	opts = append([]Option{WithClock(clock.Fixed(testNow))}, opts...)
	svc := NewService(repo, lock.NewLocal(), Config{SeedOnEmpty: seed}, opts...)
	require.NoError(t, svc.Load(context.Background()))
	return svc, repo
}

func stock(t *testing.T, svc *Service, pharmacyID, medicationID, name string, qty int) *InventoryItem {
	t.Helper()
	item, err := svc.AddItem(context.Background(), pharmacyID, InventoryItem{
		MedicationID: medicationID,
		Name:         name,
		GenericName:  name,
		Quantity:     qty,
		UnitPrice:    decimal.RequireFromString("4.25"),
		ExpiryDate:   "2026-01-31",
	})
	require.NoError(t, err)
	return item
}

func order(t *testing.T, svc *Service, pharmacyID string, items ...LineItem) *Order {
	t.Helper()
	o, err := svc.PlaceOrder(context.Background(), OrderRequest{
		PatientID:   "2",
		PatientName: "Jane Doe",
		PharmacyID:  pharmacyID,
		Items:       items,
	})
	require.NoError(t, err)
	return o
}

func quantityOf(t *testing.T, svc *Service, pharmacyID, medicationID string) int {
	t.Helper()
	items, err := svc.Inventory(context.Background(), pharmacyID, "")
	require.NoError(t, err)
	for _, i := range items {
		if i.MedicationID == medicationID {
			return i.Quantity
		}
	}
	t.Fatalf("no inventory row for %s/%s", pharmacyID, medicationID)
	return 0
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func TestLoad_SeedsOrdersAndInventory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	orders, err := svc.ListOrders(ctx, SeedPharmacyID, FilterAll)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD001", orders[0].ID, "newest first")
	assert.Equal(t, "12.99", orders[0].TotalAmount.StringFixed(2))
	assert.Equal(t, "17.98", orders[1].TotalAmount.StringFixed(2))

	items, err := svc.Inventory(ctx, SeedPharmacyID, "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"Amoxicillin", "Aspirin", "Ibuprofen"},
		[]string{items[0].Name, items[1].Name, items[2].Name})
	for _, i := range items {
		assert.GreaterOrEqual(t, i.Quantity, 20)
		assert.LessOrEqual(t, i.Quantity, 119)
		exp, err := time.Parse(DateLayout, i.ExpiryDate)
		require.NoError(t, err)
		assert.True(t, exp.After(testNow))
		assert.True(t, exp.Before(testNow.AddDate(1, 0, 1)))
	}

	// loading again keeps what is stored
	require.NoError(t, svc.Load(ctx))
	again, err := svc.Inventory(ctx, SeedPharmacyID, "")
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestPlaceOrder_ComputesTotals(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	svc, _ := newTestService(t, false, WithNotifier(n))
	stock(t, svc, "3", "1", "Aspirin", 10)

	o, err := svc.PlaceOrder(ctx, OrderRequest{
		PatientID:  "2",
		PharmacyID: "3",
		Items: []LineItem{
			{MedicationID: "1", Quantity: 3},
			{MedicationID: "9", Name: "Vitamin D", Quantity: 2, UnitPrice: decimal.RequireFromString("1.10")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, TypeOTC, o.OrderType)
	assert.Equal(t, "Aspirin", o.Items[0].Name, "name taken from inventory")
	assert.Equal(t, "12.75", o.Items[0].TotalPrice.StringFixed(2))
	assert.Equal(t, "2.20", o.Items[1].TotalPrice.StringFixed(2))
	assert.Equal(t, "14.95", o.TotalAmount.StringFixed(2))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "3", n.sent[0].RecipientID)

	rx, err := svc.PlaceOrder(ctx, OrderRequest{
		PatientID: "2", PharmacyID: "3", PrescriptionID: "RX9",
		Items: []LineItem{{MedicationID: "1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, TypePrescription, rx.OrderType)
}

func TestPlaceOrder_Validation(t *testing.T) {
	svc, _ := newTestService(t, false)
	one := []LineItem{{MedicationID: "1", Quantity: 1}}

	tests := []struct {
		name string
		req  OrderRequest
	}{
		{"no patient", OrderRequest{PharmacyID: "3", Items: one}},
		{"no pharmacy", OrderRequest{PatientID: "2", Items: one}},
		{"no items", OrderRequest{PatientID: "2", PharmacyID: "3"}},
		{"zero quantity", OrderRequest{PatientID: "2", PharmacyID: "3", Items: []LineItem{{MedicationID: "1"}}}},
		{"no medication", OrderRequest{PatientID: "2", PharmacyID: "3", Items: []LineItem{{Quantity: 1}}}},
		{"bad type", OrderRequest{PatientID: "2", PharmacyID: "3", Items: one, OrderType: "mail"}},
		{"quantity above cap", OrderRequest{PatientID: "2", PharmacyID: "3", Items: []LineItem{{MedicationID: "1", Quantity: MaxOrderQuantity + 1}}}},
		{"combined quantity above cap", OrderRequest{PatientID: "2", PharmacyID: "3", Items: []LineItem{
			{MedicationID: "1", Quantity: MaxOrderQuantity},
			{MedicationID: "1", Quantity: 1},
		}}},
		{"overflowing quantity", OrderRequest{PatientID: "2", PharmacyID: "3", Items: []LineItem{
			{MedicationID: "1", Quantity: math.MaxInt},
			{MedicationID: "1", Quantity: 2},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestApprove_DecrementsToZeroThenInsufficient(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	// GIVEN: five units of item 1 at pharmacy 3
	stock(t, svc, "3", "1", "Aspirin", 5)
	first := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 5})
	second := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})

	// WHEN: the first order is approved
	approved, err := svc.Approve(ctx, first.ID, "3", "ready for pickup")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "ready for pickup", approved.PharmacyNotes)
	require.NotNil(t, approved.EstimatedDelivery)
	days := approved.EstimatedDelivery.Sub(testNow).Hours() / 24
	assert.GreaterOrEqual(t, days, 1.0)
	assert.LessOrEqual(t, days, 3.0)

	// THEN: stock is gone and the next approval fails
	assert.Equal(t, 0, quantityOf(t, svc, "3", "1"))

	_, err = svc.Approve(ctx, second.ID, "3", "")
	var serr *InsufficientStockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"Aspirin"}, serr.MissingItems)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	still, err := svc.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, still.Status)
}

func TestApprove_ShortItemChangesNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	stock(t, svc, "3", "1", "Aspirin", 10)
	stock(t, svc, "3", "2", "Amoxicillin", 1)
	o := order(t, svc, "3",
		LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 4},
		LineItem{MedicationID: "2", Name: "Amoxicillin", Quantity: 2},
		LineItem{MedicationID: "5", Name: "Insulin", Quantity: 1},
	)

	_, err := svc.Approve(ctx, o.ID, "3", "")
	var serr *InsufficientStockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"Amoxicillin", "Insulin"}, serr.MissingItems)

	assert.Equal(t, 10, quantityOf(t, svc, "3", "1"))
	assert.Equal(t, 1, quantityOf(t, svc, "3", "2"))
}

func TestApprove_StockIsPerPharmacy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	stock(t, svc, "4", "1", "Aspirin", 50)
	o := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})

	_, err := svc.Approve(ctx, o.ID, "3", "")
	assert.ErrorIs(t, err, ErrInsufficientStock, "another pharmacy's stock does not count")
	assert.Equal(t, 50, quantityOf(t, svc, "4", "1"))
}

func TestApprove_DuplicateLinesUseCombinedQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	stock(t, svc, "3", "1", "Aspirin", 5)
	o := order(t, svc, "3",
		LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 3},
		LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 3},
	)

	_, err := svc.Approve(ctx, o.ID, "3", "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, svc, "3", "1"))
}

func TestApprove_OverflowingDemandIsInsufficient(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, false)
	stock(t, svc, "3", "1", "Aspirin", 5)

	// GIVEN: a stored order whose combined quantity passes math.MaxInt
	require.NoError(t, repo.SaveOrders(ctx, []Order{{
		ID:         "ORD-huge",
		PatientID:  "2",
		PharmacyID: "3",
		Status:     StatusPending,
		OrderType:  TypeOTC,
		Items: []LineItem{
			{MedicationID: "1", Quantity: math.MaxInt},
			{MedicationID: "1", Quantity: 2},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}}))

	// WHEN: it is approved
	_, err := svc.Approve(ctx, "ORD-huge", "3", "")

	// THEN: demand saturates and stock is untouched
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, svc, "3", "1"))
}

func TestApprove_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)
	stock(t, svc, "3", "1", "Aspirin", 5)
	o := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})

	_, err := svc.Approve(ctx, "missing", "3", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Approve(ctx, o.ID, "4", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Approve(ctx, o.ID, "3", "")
	require.NoError(t, err)

	// a second approval never subtracts twice
	_, err = svc.Approve(ctx, o.ID, "3", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 4, quantityOf(t, svc, "3", "1"))
}

func TestApprove_ConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)
	stock(t, svc, "3", "1", "Aspirin", 3)

	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1}).ID)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.Approve(ctx, id, "3", ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, wins)
	assert.Equal(t, 0, quantityOf(t, svc, "3", "1"))
}

func TestReject_LeavesInventoryAlone(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	svc, repo := newTestService(t, false, WithNotifier(n))
	stock(t, svc, "3", "1", "Aspirin", 5)
	o := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 5})

	before, _, err := repo.LoadInventory(ctx)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, o.ID, "3", "Dosage concerns", "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "Dosage concerns", rejected.RejectionReason)
	assert.Equal(t, "Rejected: Dosage concerns", rejected.PharmacyNotes)
	require.NotNil(t, rejected.RejectedAt)

	after, _, err := repo.LoadInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = svc.Approve(ctx, o.ID, "3", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	last := n.sent[len(n.sent)-1]
	assert.Equal(t, "2", last.RecipientID)
}

func TestReject_ReasonResolution(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	o := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})
	rejected, err := svc.Reject(ctx, o.ID, "3", ReasonOther, "Pharmacist unavailable")
	require.NoError(t, err)
	assert.Equal(t, "Pharmacist unavailable", rejected.RejectionReason)

	o = order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})
	_, err = svc.Reject(ctx, o.ID, "3", ReasonOther, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Reject(ctx, o.ID, "9", "Out of stock", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Reject(ctx, "missing", "3", "Out of stock", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRejectionReasons(t *testing.T) {
	svc, _ := newTestService(t, false)
	reasons := svc.RejectionReasons()
	require.Len(t, reasons, 10)
	assert.Equal(t, ReasonOther, reasons[len(reasons)-1])
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)
	stock(t, svc, "3", "1", "Aspirin", 2)

	av, err := svc.CheckAvailability(ctx, []LineItem{{MedicationID: "1", Name: "Aspirin", Quantity: 2}}, "3")
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Empty(t, av.MissingItems)

	av, err = svc.CheckAvailability(ctx, []LineItem{{MedicationID: "1", Name: "Aspirin", Quantity: 3}}, "3")
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, []string{"Aspirin"}, av.MissingItems)

	// unnamed lines are reported by stock row name, then by id
	av, err = svc.CheckAvailability(ctx, []LineItem{
		{MedicationID: "1", Quantity: math.MaxInt},
		{MedicationID: "1", Quantity: 2},
		{MedicationID: "9", Quantity: 1},
	}, "3")
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, []string{"Aspirin", "9"}, av.MissingItems)
}

func TestListOrders_Filters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	pending, err := svc.PendingOrders(ctx, SeedPharmacyID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = svc.Reject(ctx, "ORD002", SeedPharmacyID, "Out of stock", "")
	require.NoError(t, err)

	pending, err = svc.PendingOrders(ctx, SeedPharmacyID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD001", pending[0].ID)

	rejected, err := svc.ListOrders(ctx, SeedPharmacyID, StatusFilter(StatusRejected))
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	other, err := svc.ListOrders(ctx, "99", FilterAll)
	require.NoError(t, err)
	assert.Empty(t, other)

	mine, err := svc.PatientOrders(ctx, "2")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	stock(t, svc, "3", "1", "Aspirin", 12)
	low := stock(t, svc, "3", "2", "Amoxicillin", 3)
	_, err := svc.UpdateItem(ctx, low.ID, "3", ItemUpdate{ExpiryDate: ptr("2025-03-20")})
	require.NoError(t, err)

	a := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 2, UnitPrice: decimal.RequireFromString("5.50")})
	b := order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})
	order(t, svc, "3", LineItem{MedicationID: "1", Name: "Aspirin", Quantity: 1})

	_, err = svc.Approve(ctx, a.ID, "3", "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, b.ID, "3", "Out of stock", "")
	require.NoError(t, err)

	got, err := svc.Analytics(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, Analytics{
		TotalOrders:         3,
		PendingOrders:       1,
		ApprovedOrders:      1,
		RejectedOrders:      1,
		ApprovalRate:        "33.3",
		TotalRevenue:        "11.00",
		TotalInventoryItems: 2,
		LowStockItemsCount:  1,
		ExpiringItemsCount:  1,
	}, got)
}

func TestInventoryCRUD(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	item := stock(t, svc, "3", "1", "Aspirin", 5)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, DefaultMinimumStock, item.MinimumStock)
	assert.Equal(t, "General", item.Category)
	assert.NotEmpty(t, item.BatchNumber)

	// re-adding the same medication updates the row in place
	again := stock(t, svc, "3", "1", "Aspirin", 40)
	assert.Equal(t, item.ID, again.ID)
	items, err := svc.Inventory(ctx, "3", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 40, items[0].Quantity)

	stock(t, svc, "3", "3", "Ibuprofen", 7)
	found, err := svc.Inventory(ctx, "3", "IBU")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ibuprofen", found[0].Name)

	adjusted, err := svc.AdjustStock(ctx, item.ID, "3", -100)
	require.NoError(t, err)
	assert.Equal(t, 0, adjusted.Quantity, "floored at zero")

	adjusted, err = svc.AdjustStock(ctx, item.ID, "3", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, adjusted.Quantity)

	_, err = svc.AdjustStock(ctx, item.ID, "3", math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 25, quantityOf(t, svc, "3", "1"), "an overflowing restock changes nothing")

	_, err = svc.UpdateItem(ctx, item.ID, "3", ItemUpdate{Quantity: ptr(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateItem(ctx, item.ID, "4", ItemUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrItemNotFound, "rows are scoped to their pharmacy")

	deleted, err := svc.DeleteItem(ctx, item.ID, "3")
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", deleted.Name)

	_, err = svc.DeleteItem(ctx, item.ID, "3")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.AddItem(ctx, "3", InventoryItem{MedicationID: "8", Name: "Bad", Quantity: -2})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLowStockAndExpiring(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, false)

	stock(t, svc, "3", "1", "Aspirin", 10)
	stock(t, svc, "3", "2", "Amoxicillin", 11)
	soon := stock(t, svc, "3", "3", "Ibuprofen", 50)
	_, err := svc.UpdateItem(ctx, soon.ID, "3", ItemUpdate{ExpiryDate: ptr("2025-03-25")})
	require.NoError(t, err)

	low, err := svc.LowStock(ctx, "3")
	require.NoError(t, err)
	require.Len(t, low, 1, "quantity equal to the minimum counts as low")
	assert.Equal(t, "Aspirin", low[0].Name)

	expiring, err := svc.ExpiringSoon(ctx, "3", 0)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "Ibuprofen", expiring[0].Name)

	expiring, err = svc.ExpiringSoon(ctx, "3", 14)
	require.NoError(t, err)
	assert.Len(t, expiring, 0)
}

func ptr[T any](v T) *T { return &v }
