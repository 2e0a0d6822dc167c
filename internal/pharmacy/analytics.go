package pharmacy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Analytics aggregates the pharmacy's ledger and stock. Nothing is stored.
func (s *Service) Analytics(ctx context.Context, pharmacyID string) (Analytics, error) {
	orders, err := s.ListOrders(ctx, pharmacyID, FilterAll)
	if err != nil {
		return Analytics{}, err
	}
	inventory, _, err := s.repo.LoadInventory(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("load inventory: %w", err)
	}

	var a Analytics
	revenue := decimal.Zero
	for _, o := range orders {
		a.TotalOrders++
		switch o.Status {
		case StatusPending:
			a.PendingOrders++
		case StatusApproved:
			a.ApprovedOrders++
			revenue = revenue.Add(o.TotalAmount)
		case StatusRejected:
			a.RejectedOrders++
		}
	}

	cutoff := s.expiryCutoff(DefaultExpiryWindow)
	for _, i := range inventory {
		if i.PharmacyID != pharmacyID {
			continue
		}
		a.TotalInventoryItems++
		if i.lowStock() {
			a.LowStockItemsCount++
		}
		if expiresBy(i, cutoff) {
			a.ExpiringItemsCount++
		}
	}

	rate := decimal.Zero
	if a.TotalOrders > 0 {
		rate = decimal.NewFromInt(int64(a.ApprovedOrders * 100)).Div(decimal.NewFromInt(int64(a.TotalOrders)))
	}
	a.ApprovalRate = rate.StringFixed(1)
	a.TotalRevenue = revenue.StringFixed(2)
	return a, nil
}
