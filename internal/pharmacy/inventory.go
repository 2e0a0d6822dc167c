package pharmacy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/care-coordination/internal/kv"
)

// Inventory returns the pharmacy's stock sorted by name, optionally
// filtered by a case-insensitive match on name or generic name.
func (s *Service) Inventory(ctx context.Context, pharmacyID, query string) ([]InventoryItem, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	items, err := s.items(ctx, func(i InventoryItem) bool {
		if i.PharmacyID != pharmacyID {
			return false
		}
		return q == "" ||
			strings.Contains(strings.ToLower(i.Name), q) ||
			strings.Contains(strings.ToLower(i.GenericName), q)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(a, b int) bool {
		return strings.ToLower(items[a].Name) < strings.ToLower(items[b].Name)
	})
	return items, nil
}

// AddItem upserts on (pharmacyID, MedicationID). An existing row keeps its
// id and addedAt and takes every other field from item.
func (s *Service) AddItem(ctx context.Context, pharmacyID string, item InventoryItem) (*InventoryItem, error) {
	if pharmacyID == "" {
		return nil, invalid("pharmacyId is required")
	}
	if item.MedicationID == "" {
		return nil, invalid("medicationId is required")
	}
	if item.Name == "" {
		return nil, invalid("name is required")
	}
	if err := validateStock(item.Quantity, item.MinimumStock, item.ExpiryDate); err != nil {
		return nil, err
	}
	if item.UnitPrice.IsNegative() {
		return nil, invalid("price must not be negative")
	}

	var saved InventoryItem
	err := s.mutateInventory(ctx, func(rows []InventoryItem, now time.Time) ([]InventoryItem, error) {
		item.PharmacyID = pharmacyID
		item.UpdatedAt = now
		if item.MinimumStock == 0 {
			item.MinimumStock = DefaultMinimumStock
		}
		if item.Category == "" {
			item.Category = "General"
		}
		if item.BatchNumber == "" {
			item.BatchNumber = "BATCH" + now.Format("20060102150405")
		}

		if j := itemIndexFor(rows, pharmacyID, item.MedicationID); j >= 0 {
			item.ID = rows[j].ID
			item.AddedAt = rows[j].AddedAt
			rows[j] = item
		} else {
			item.ID = "INV-" + uuid.NewString()
			item.AddedAt = now
			rows = append(rows, item)
		}
		saved = item
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID, pharmacyID string, upd ItemUpdate) (*InventoryItem, error) {
	var saved InventoryItem
	err := s.mutateInventory(ctx, func(rows []InventoryItem, now time.Time) ([]InventoryItem, error) {
		j := itemIndex(rows, itemID, pharmacyID)
		if j < 0 {
			return nil, ErrItemNotFound
		}
		item := rows[j]
		upd.apply(&item)
		if err := validateStock(item.Quantity, item.MinimumStock, item.ExpiryDate); err != nil {
			return nil, err
		}
		if item.UnitPrice.IsNegative() {
			return nil, invalid("price must not be negative")
		}
		item.UpdatedAt = now
		rows[j] = item
		saved = item
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID, pharmacyID string) (*InventoryItem, error) {
	var deleted InventoryItem
	err := s.mutateInventory(ctx, func(rows []InventoryItem, _ time.Time) ([]InventoryItem, error) {
		j := itemIndex(rows, itemID, pharmacyID)
		if j < 0 {
			return nil, ErrItemNotFound
		}
		deleted = rows[j]
		return append(rows[:j], rows[j+1:]...), nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// AdjustStock adds delta to the row's quantity, flooring the result at 0.
// A delta that would overflow the quantity is rejected.
func (s *Service) AdjustStock(ctx context.Context, itemID, pharmacyID string, delta int) (*InventoryItem, error) {
	var saved InventoryItem
	err := s.mutateInventory(ctx, func(rows []InventoryItem, now time.Time) ([]InventoryItem, error) {
		j := itemIndex(rows, itemID, pharmacyID)
		if j < 0 {
			return nil, ErrItemNotFound
		}
		if delta > 0 && rows[j].Quantity > math.MaxInt-delta {
			return nil, invalid("adjusting %s by %d overflows its quantity", itemID, delta)
		}
		rows[j].Quantity = max(0, rows[j].Quantity+delta)
		rows[j].UpdatedAt = now
		saved = rows[j]
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// LowStock lists rows at or below their minimum stock.
func (s *Service) LowStock(ctx context.Context, pharmacyID string) ([]InventoryItem, error) {
	return s.items(ctx, func(i InventoryItem) bool {
		return i.PharmacyID == pharmacyID && i.lowStock()
	})
}

// ExpiringSoon lists rows whose expiry date falls within withinDays of
// today, including rows already expired. withinDays <= 0 uses the
// default window.
func (s *Service) ExpiringSoon(ctx context.Context, pharmacyID string, withinDays int) ([]InventoryItem, error) {
	cutoff := s.expiryCutoff(withinDays)
	return s.items(ctx, func(i InventoryItem) bool {
		return i.PharmacyID == pharmacyID && expiresBy(i, cutoff)
	})
}

func (s *Service) expiryCutoff(withinDays int) time.Time {
	if withinDays <= 0 {
		withinDays = DefaultExpiryWindow
	}
	return today(s.clock.Now()).AddDate(0, 0, withinDays)
}

func expiresBy(i InventoryItem, cutoff time.Time) bool {
	if i.ExpiryDate == "" {
		return false
	}
	exp, err := time.ParseInLocation(DateLayout, i.ExpiryDate, cutoff.Location())
	if err != nil {
		return false
	}
	return !exp.After(cutoff)
}

func (s *Service) items(ctx context.Context, keep func(InventoryItem) bool) ([]InventoryItem, error) {
	rows, _, err := s.repo.LoadInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	out := make([]InventoryItem, 0)
	for _, i := range rows {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s *Service) mutateInventory(ctx context.Context, fn func([]InventoryItem, time.Time) ([]InventoryItem, error)) error {
	return s.locker.WithLock(ctx, kv.KeyInventory, func(ctx context.Context) error {
		rows, _, err := s.repo.LoadInventory(ctx)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		rows, err = fn(rows, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.SaveInventory(ctx, rows); err != nil {
			return fmt.Errorf("save inventory: %w", err)
		}
		return nil
	})
}

func validateStock(quantity, minimum int, expiry string) error {
	if quantity < 0 {
		return invalid("quantity must not be negative")
	}
	if minimum < 0 {
		return invalid("minimumStock must not be negative")
	}
	if expiry != "" {
		if _, err := time.Parse(DateLayout, expiry); err != nil {
			return invalid("expiryDate %q must be YYYY-MM-DD", expiry)
		}
	}
	return nil
}
