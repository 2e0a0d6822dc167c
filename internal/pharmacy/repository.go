package pharmacy

import (
	"context"

	"github.com/hackgods/care-coordination/internal/kv"
)

type Repository interface {
	LoadOrders(ctx context.Context) (rows []Order, found bool, err error)
	LoadInventory(ctx context.Context) (rows []InventoryItem, found bool, err error)

	SaveOrders(ctx context.Context, rows []Order) error
	SaveInventory(ctx context.Context, rows []InventoryItem) error

	// SaveAll persists orders and inventory together
	SaveAll(ctx context.Context, orders []Order, inventory []InventoryItem) error
}

type KVRepository struct {
	store     kv.Store
	orders    *kv.Table[Order]
	inventory *kv.Table[InventoryItem]
}

func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{
		store:     store,
		orders:    kv.NewTable[Order](store, kv.KeyOrders),
		inventory: kv.NewTable[InventoryItem](store, kv.KeyInventory),
	}
}

func (r *KVRepository) LoadOrders(ctx context.Context) ([]Order, bool, error) {
	return r.orders.Load(ctx)
}

func (r *KVRepository) LoadInventory(ctx context.Context) ([]InventoryItem, bool, error) {
	return r.inventory.Load(ctx)
}

func (r *KVRepository) SaveOrders(ctx context.Context, rows []Order) error {
	return r.orders.Save(ctx, rows)
}

func (r *KVRepository) SaveInventory(ctx context.Context, rows []InventoryItem) error {
	return r.inventory.Save(ctx, rows)
}

func (r *KVRepository) SaveAll(ctx context.Context, orders []Order, inventory []InventoryItem) error {
	return kv.Commit(ctx, r.store, r.orders.Write(orders), r.inventory.Write(inventory))
}
