// Package kv is the persistence collaborator: whole JSON values stored by string key.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Table keys. One key per logical table.
const (
	KeyAppointments  = "appointments"
	KeySlots         = "availableSlots"
	KeyOrders        = "pharmacyOrders"
	KeyInventory     = "pharmacyInventory"
	KeyNotifications = "notifications"
)

var (
	// ErrNotFound is returned by Get when no value is stored under the key.
	ErrNotFound = errors.New("kv: key not found")

	// ErrPersistence matches every *PersistenceError via errors.Is.
	ErrPersistence = errors.New("persistence failure")
)

// Store reads and writes whole values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// SetMany writes all values or none of them.
	SetMany(ctx context.Context, values map[string][]byte) error

	Ping(ctx context.Context) error
	Close() error
}

// PersistenceError wraps storage and serialization failures.
type PersistenceError struct {
	Op  string // get, set, decode, encode
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Table is a typed view over one key holding a JSON array of rows.
type Table[T any] struct {
	store Store
	key   string
}

func NewTable[T any](store Store, key string) *Table[T] {
	return &Table[T]{store: store, key: key}
}

func (t *Table[T]) Key() string { return t.key }

// Load returns the stored rows. found is false when the key is absent.
func (t *Table[T]) Load(ctx context.Context) (rows []T, found bool, err error) {
	data, err := t.store.Get(ctx, t.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, &PersistenceError{Op: "get", Key: t.key, Err: err}
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, true, &PersistenceError{Op: "decode", Key: t.key, Err: err}
	}
	return rows, true, nil
}

// Rows is Load with absence treated as an empty table.
func (t *Table[T]) Rows(ctx context.Context) ([]T, error) {
	rows, _, err := t.Load(ctx)
	return rows, err
}

func (t *Table[T]) Save(ctx context.Context, rows []T) error {
	return Commit(ctx, t.store, t.Write(rows))
}

// Write stages rows for a Commit.
func (t *Table[T]) Write(rows []T) Write {
	if rows == nil {
		rows = []T{}
	}
	return Write{Key: t.key, Value: rows}
}

// Write is one pending table value.
type Write struct {
	Key   string
	Value any
}

// Commit encodes every write and persists them in a single SetMany.
func Commit(ctx context.Context, store Store, writes ...Write) error {
	values := make(map[string][]byte, len(writes))
	for _, w := range writes {
		data, err := json.Marshal(w.Value)
		if err != nil {
			return &PersistenceError{Op: "encode", Key: w.Key, Err: err}
		}
		values[w.Key] = data
	}

	if err := store.SetMany(ctx, values); err != nil {
		return &PersistenceError{Op: "set", Key: joinKeys(writes), Err: err}
	}
	return nil
}

func joinKeys(writes []Write) string {
	keys := make([]string, 0, len(writes))
	for _, w := range writes {
		keys = append(keys, w.Key)
	}
	return strings.Join(keys, ",")
}
