package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/clock"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/lock"
	"github.com/hackgods/care-coordination/internal/notify"
	"github.com/hackgods/care-coordination/internal/pharmacy"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, store kv.Store) http.Handler {
	t.Helper()
	ctx := context.Background()
	locker := lock.NewLocal()
	clk := clock.Fixed(testNow)

	feed := notify.NewService(store, locker, notify.WithClock(clk))
	appts := appointment.NewService(appointment.NewKVRepository(store), locker,
		appointment.Config{HorizonDays: 7, Times: []string{"10:00", "11:00"}, DoctorIDs: []string{"1"}, SeedOnEmpty: true},
		appointment.WithClock(clk), appointment.WithNotifier(feed))
	pharm := pharmacy.NewService(pharmacy.NewKVRepository(store), locker,
		pharmacy.Config{SeedOnEmpty: false},
		pharmacy.WithClock(clk), pharmacy.WithNotifier(feed))

	if _, ok := store.(*kv.Memory); ok {
		require.NoError(t, appts.Load(ctx))
		require.NoError(t, pharm.Load(ctx))
	}

	return NewRouter(RouterConfig{
		Handler:      NewHandler(appts, pharm, feed, zerolog.Nop()),
		Store:        store,
		StoreBackend: "memory",
		Env:          "test",
		Version:      "test",
		Logger:       zerolog.Nop(),
	})
}

type actor struct{ id, role string }

func do(t *testing.T, h http.Handler, method, path string, as actor, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as.id != "" {
		req.Header.Set(HeaderActorID, as.id)
		req.Header.Set(HeaderActorRole, as.role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if rec.Code != http.StatusNoContent && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// decodeData re-encodes the envelope payload into v.
func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

var (
	jane     = actor{"2", "patient"}
	drSmith  = actor{"1", "doctor"}
	pharma   = actor{"3", "pharmacy"}
	stranger = actor{"9", "patient"}
)

func TestHealth(t *testing.T) {
	h := newTestRouter(t, kv.NewMemory())

	rec, _ := do(t, h, http.MethodGet, "/health/live", actor{}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec, _ = do(t, h, http.MethodGet, "/health/ready", actor{}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "ok", ready.Dependencies["store:memory"])
}

type downStore struct{ *kv.Memory }

func (downStore) Ping(context.Context) error { return errors.New("disk gone") }

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }

func TestHealth_StoreDown(t *testing.T) {
	h := newTestRouter(t, downStore{kv.NewMemory()})
	rec, _ := do(t, h, http.MethodGet, "/health/ready", actor{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPersistenceFailureIs503(t *testing.T) {
	h := newTestRouter(t, downStore{kv.NewMemory()})
	rec, resp := do(t, h, http.MethodGet, "/api/appointments/APT001", jane, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, CodePersistence, resp.Code)
}

func TestBookingFlow(t *testing.T) {
	h := newTestRouter(t, kv.NewMemory())

	req := appointment.BookingRequest{DoctorID: "1", DoctorName: "Dr. John Smith", Date: "2025-03-12", Time: "10:00", Reason: "Headache"}
	rec, resp := do(t, h, http.MethodPost, "/api/appointments", jane, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	var appt appointment.Appointment
	decodeData(t, resp, &appt)
	assert.Equal(t, "2", appt.PatientID, "patient id comes from the caller")
	assert.Equal(t, appointment.StatusScheduled, appt.Status)

	rec, resp = do(t, h, http.MethodPost, "/api/appointments", stranger, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeSlotUnavailable, resp.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/slots?doctorId=1&date=2025-03-12", actor{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var free []string
	decodeData(t, resp, &free)
	assert.Equal(t, []string{"11:00"}, free)

	rec, resp = do(t, h, http.MethodPost, "/api/appointments/"+appt.ID+"/cancel", stranger, CancelRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeUnauthorized, resp.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/appointments/"+appt.ID+"/notes", drSmith, NotesRequest{Notes: "Hydrate"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/appointments/"+appt.ID+"/complete", drSmith, CompleteRequest{Diagnosis: "Tension headache"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/appointments/"+appt.ID+"/cancel", jane, CancelRequest{Reason: "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeInvalidTransition, resp.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/appointments", jane, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []appointment.View
	decodeData(t, resp, &mine)
	require.Len(t, mine, 2, "seeded APT001 plus the new booking")
	assert.Equal(t, "APT001", mine[0].ID)
	assert.True(t, mine[0].IsUpcoming)

	rec, resp = do(t, h, http.MethodGet, "/api/appointments/stats", jane, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st appointment.Stats
	decodeData(t, resp, &st)
	assert.Equal(t, "50.0", st.CompletionRate)

	rec, resp = do(t, h, http.MethodGet, "/api/notifications/unread-count", jane, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count CountResponse
	decodeData(t, resp, &count)
	assert.Equal(t, 2, count.Count, "confirmation and completion")
}

func TestBooking_Errors(t *testing.T) {
	h := newTestRouter(t, kv.NewMemory())

	rec, resp := do(t, h, http.MethodPost, "/api/appointments", jane, appointment.BookingRequest{DoctorID: "1", Date: "tomorrow", Time: "10:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, resp.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/appointments", jane, appointment.BookingRequest{PatientID: "5", DoctorID: "1", Date: "2025-03-12", Time: "10:00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeUnauthorized, resp.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/appointments/nope", jane, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/appointments/APT001/cancel", actor{}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "identity is required")
}

func TestPharmacyFlow(t *testing.T) {
	h := newTestRouter(t, kv.NewMemory())

	item := map[string]any{"medicationId": "1", "name": "Aspirin", "genericName": "Acetylsalicylic Acid", "quantity": 5, "unitPrice": "12.99"}
	rec, _ := do(t, h, http.MethodPost, "/api/pharmacy/inventory", jane, item)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only pharmacies stock items")

	rec, resp := do(t, h, http.MethodPost, "/api/pharmacy/inventory", pharma, item)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var row pharmacy.InventoryItem
	decodeData(t, resp, &row)
	assert.Equal(t, "3", row.PharmacyID)

	order := pharmacy.OrderRequest{PharmacyID: "3", Items: []pharmacy.LineItem{{MedicationID: "1", Quantity: 5}}}
	rec, resp = do(t, h, http.MethodPost, "/api/pharmacy/orders", jane, order)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first pharmacy.Order
	decodeData(t, resp, &first)
	assert.Equal(t, "64.95", first.TotalAmount.StringFixed(2))

	rec, resp = do(t, h, http.MethodPost, "/api/pharmacy/orders", jane, order)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second pharmacy.Order
	decodeData(t, resp, &second)

	rec, _ = do(t, h, http.MethodPost, "/api/pharmacy/orders/"+first.ID+"/approve", actor{"4", "pharmacy"}, ApproveRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/pharmacy/orders/"+first.ID+"/approve", pharma, ApproveRequest{Notes: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = do(t, h, http.MethodPost, "/api/pharmacy/orders/"+second.ID+"/approve", pharma, ApproveRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeInsufficientStock, resp.Code)
	assert.Equal(t, []string{"Aspirin"}, resp.MissingItems)

	rec, resp = do(t, h, http.MethodPost, "/api/pharmacy/orders/"+second.ID+"/reject", pharma, RejectRequest{Reason: pharmacy.ReasonOther, CustomReason: "Restock next week"})
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected pharmacy.Order
	decodeData(t, resp, &rejected)
	assert.Equal(t, "Rejected: Restock next week", rejected.PharmacyNotes)

	rec, resp = do(t, h, http.MethodGet, "/api/pharmacy/analytics", pharma, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a pharmacy.Analytics
	decodeData(t, resp, &a)
	assert.Equal(t, 2, a.TotalOrders)
	assert.Equal(t, "64.95", a.TotalRevenue)
	assert.Equal(t, 1, a.LowStockItemsCount)

	rec, resp = do(t, h, http.MethodGet, "/api/pharmacy/orders", jane, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []pharmacy.Order
	decodeData(t, resp, &mine)
	assert.Len(t, mine, 2)

	rec, resp = do(t, h, http.MethodGet, "/api/pharmacy/rejection-reasons", actor{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reasons []string
	decodeData(t, resp, &reasons)
	assert.Len(t, reasons, 10)
}

func TestNotificationsEndpoints(t *testing.T) {
	h := newTestRouter(t, kv.NewMemory())

	req := appointment.BookingRequest{DoctorID: "1", Date: "2025-03-12", Time: "11:00"}
	rec, _ := do(t, h, http.MethodPost, "/api/appointments", jane, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := do(t, h, http.MethodGet, "/api/notifications?unread=true", drSmith, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed []notify.Notification
	decodeData(t, resp, &feed)
	require.Len(t, feed, 1)

	rec, _ = do(t, h, http.MethodPost, "/api/notifications/"+feed[0].ID+"/read", drSmith, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/notifications/"+feed[0].ID+"/read", jane, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/notifications", drSmith, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/notifications", drSmith, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, resp, &feed)
	assert.Empty(t, feed)
}
