package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/care-coordination/internal/authz"
	"github.com/hackgods/care-coordination/internal/pharmacy"
)

// pharmacyScope is the pharmacyId query parameter, or the caller when
// the caller is a pharmacy.
func pharmacyScope(r *http.Request) string {
	if id := r.URL.Query().Get("pharmacyId"); id != "" {
		return id
	}
	if actor := GetActor(r.Context()); actor.Role == authz.RolePharmacy {
		return actor.ID
	}
	return ""
}

// requirePharmacy only lets pharmacies through. Stock rows are scoped to
// the caller.
func requirePharmacy(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return "", false
	}
	if actor.Role != authz.RolePharmacy {
		writeError(w, http.StatusForbidden, CodeUnauthorized, "pharmacy role required")
		return "", false
	}
	return actor.ID, true
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if actor := GetActor(r.Context()); actor.Role == authz.RolePatient {
		if req.PatientID != "" && req.PatientID != actor.ID {
			writeError(w, http.StatusForbidden, CodeUnauthorized, "patients can only order for themselves")
			return
		}
		req.PatientID = actor.ID
	}

	order, err := h.pharmacy.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []pharmacy.Order
		err    error
	)
	actor := GetActor(r.Context())
	if patientID := r.URL.Query().Get("patientId"); patientID != "" || actor.Role == authz.RolePatient {
		if patientID == "" {
			patientID = actor.ID
		}
		orders, err = h.pharmacy.PatientOrders(r.Context(), patientID)
	} else {
		orders, err = h.pharmacy.ListOrders(r.Context(), pharmacyScope(r), pharmacy.StatusFilter(r.URL.Query().Get("status")))
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, orders)
}

func (h *Handler) PendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.pharmacy.PendingOrders(r.Context(), pharmacyScope(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.pharmacy.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, order)
}

func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	order, err := h.pharmacy.Approve(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Notes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, order)
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	order, err := h.pharmacy.Reject(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Reason, req.CustomReason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, order)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.PharmacyID == "" {
		req.PharmacyID = pharmacyScope(r)
	}
	av, err := h.pharmacy.CheckAvailability(r.Context(), req.Items, req.PharmacyID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, av)
}

func (h *Handler) RejectionReasons(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.pharmacy.RejectionReasons())
}

func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.pharmacy.Inventory(r.Context(), pharmacyScope(r), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, items)
}

func (h *Handler) AddInventoryItem(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := requirePharmacy(w, r)
	if !ok {
		return
	}
	var item pharmacy.InventoryItem
	if err := decodeJSON(r, &item); err != nil {
		writeBadRequest(w, err)
		return
	}
	saved, err := h.pharmacy.AddItem(r.Context(), pharmacyID, item)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, saved)
}

func (h *Handler) UpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := requirePharmacy(w, r)
	if !ok {
		return
	}
	var upd pharmacy.ItemUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeBadRequest(w, err)
		return
	}
	saved, err := h.pharmacy.UpdateItem(r.Context(), chi.URLParam(r, "id"), pharmacyID, upd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, saved)
}

func (h *Handler) DeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := requirePharmacy(w, r)
	if !ok {
		return
	}
	deleted, err := h.pharmacy.DeleteItem(r.Context(), chi.URLParam(r, "id"), pharmacyID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, deleted)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := requirePharmacy(w, r)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	saved, err := h.pharmacy.AdjustStock(r.Context(), chi.URLParam(r, "id"), pharmacyID, req.Delta)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, saved)
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.pharmacy.LowStock(r.Context(), pharmacyScope(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, items)
}

func (h *Handler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", pharmacy.DefaultExpiryWindow)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	items, err := h.pharmacy.ExpiringSoon(r.Context(), pharmacyScope(r), days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, items)
}

func (h *Handler) PharmacyAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.pharmacy.Analytics(r.Context(), pharmacyScope(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, a)
}
