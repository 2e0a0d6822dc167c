// Package notify keeps the in-app notification feed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/clock"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/lock"
)

// DefaultLimit caps the stored feed; the oldest entries are dropped first.
const DefaultLimit = 200

var (
	ErrNotFound    = errors.New("notification not found")
	ErrNoRecipient = errors.New("notification has no recipient")
)

type Service struct {
	table  *kv.Table[Notification]
	locker lock.Locker
	clock  clock.Clock
	logger zerolog.Logger
	limit  int
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithLimit(n int) Option { return func(s *Service) { s.limit = n } }

func NewService(store kv.Store, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		table:  kv.NewTable[Notification](store, kv.KeyNotifications),
		locker: locker,
		clock:  clock.Real(),
		logger: zerolog.Nop(),
		limit:  DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify stores n at the head of the recipient's feed.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if n.RecipientID == "" {
		return ErrNoRecipient
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.Type == "" {
		n.Type = TypeSystem
	}
	n.CreatedAt = s.clock.Now()
	n.Read = false
	n.ReadAt = nil

	return s.mutate(ctx, func(rows []Notification) ([]Notification, error) {
		rows = append([]Notification{n}, rows...)
		if s.limit > 0 && len(rows) > s.limit {
			rows = rows[:s.limit]
		}
		s.logger.Debug().
			Str("recipient_id", n.RecipientID).
			Str("type", string(n.Type)).
			Msg("notification stored")
		return rows, nil
	})
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	rows, err := s.table.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]Notification, 0)
	for _, n := range rows {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	unread, err := s.List(ctx, recipientID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID string) (Notification, error) {
	var marked Notification
	err := s.mutate(ctx, func(rows []Notification) ([]Notification, error) {
		i := indexOf(rows, id, recipientID)
		if i < 0 {
			return nil, ErrNotFound
		}
		if !rows[i].Read {
			now := s.clock.Now()
			rows[i].Read = true
			rows[i].ReadAt = &now
		}
		marked = rows[i]
		return rows, nil
	})
	return marked, err
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	changed := 0
	err := s.mutate(ctx, func(rows []Notification) ([]Notification, error) {
		now := s.clock.Now()
		for i := range rows {
			if rows[i].RecipientID == recipientID && !rows[i].Read {
				rows[i].Read = true
				rows[i].ReadAt = &now
				changed++
			}
		}
		return rows, nil
	})
	return changed, err
}

func (s *Service) Remove(ctx context.Context, id, recipientID string) error {
	return s.mutate(ctx, func(rows []Notification) ([]Notification, error) {
		i := indexOf(rows, id, recipientID)
		if i < 0 {
			return nil, ErrNotFound
		}
		return append(rows[:i], rows[i+1:]...), nil
	})
}

// Clear drops every notification addressed to recipientID.
func (s *Service) Clear(ctx context.Context, recipientID string) error {
	return s.mutate(ctx, func(rows []Notification) ([]Notification, error) {
		kept := rows[:0]
		for _, n := range rows {
			if n.RecipientID != recipientID {
				kept = append(kept, n)
			}
		}
		return kept, nil
	})
}

func (s *Service) mutate(ctx context.Context, fn func([]Notification) ([]Notification, error)) error {
	return s.locker.WithLock(ctx, kv.KeyNotifications, func(ctx context.Context) error {
		rows, err := s.table.Rows(ctx)
		if err != nil {
			return err
		}
		rows, err = fn(rows)
		if err != nil {
			return err
		}
		return s.table.Save(ctx, rows)
	})
}

func indexOf(rows []Notification, id, recipientID string) int {
	for i, n := range rows {
		if n.ID == id && n.RecipientID == recipientID {
			return i
		}
	}
	return -1
}
