package appointment

import (
	"context"

	"github.com/hackgods/care-coordination/internal/kv"
)

// Repository contains all storage interactions needed by the service.
// Tables are read and written whole.
type Repository interface {
	// found is false when the table has never been stored
	LoadAppointments(ctx context.Context) (rows []Appointment, found bool, err error)
	LoadSlots(ctx context.Context) (rows []Slot, found bool, err error)

	SaveAppointments(ctx context.Context, rows []Appointment) error
	SaveSlots(ctx context.Context, rows []Slot) error

	// SaveAll persists both tables together
	SaveAll(ctx context.Context, appointments []Appointment, slots []Slot) error
}

type KVRepository struct {
	store        kv.Store
	appointments *kv.Table[Appointment]
	slots        *kv.Table[Slot]
}

func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{
		store:        store,
		appointments: kv.NewTable[Appointment](store, kv.KeyAppointments),
		slots:        kv.NewTable[Slot](store, kv.KeySlots),
	}
}

func (r *KVRepository) LoadAppointments(ctx context.Context) ([]Appointment, bool, error) {
	return r.appointments.Load(ctx)
}

func (r *KVRepository) LoadSlots(ctx context.Context) ([]Slot, bool, error) {
	return r.slots.Load(ctx)
}

func (r *KVRepository) SaveAppointments(ctx context.Context, rows []Appointment) error {
	return r.appointments.Save(ctx, rows)
}

func (r *KVRepository) SaveSlots(ctx context.Context, rows []Slot) error {
	return r.slots.Save(ctx, rows)
}

func (r *KVRepository) SaveAll(ctx context.Context, appointments []Appointment, slots []Slot) error {
	return kv.Commit(ctx, r.store, r.appointments.Write(appointments), r.slots.Write(slots))
}

// lockKeys are the table keys a booking or cancellation writes.
var lockKeys = []string{kv.KeyAppointments, kv.KeySlots}
