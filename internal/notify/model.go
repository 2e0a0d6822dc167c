package notify

import (
	"context"
	"time"
)

type Type string

const (
	TypeEmergency    Type = "emergency"
	TypeMedication   Type = "medication"
	TypeAppointment  Type = "appointment"
	TypePrescription Type = "prescription"
	TypeDoctor       Type = "doctor"
	TypePharmacy     Type = "pharmacy"
	TypeReminder     Type = "reminder"
	TypeSystem       Type = "system"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

type Notification struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipientId"`
	Type        Type              `json:"type"`
	Priority    Priority          `json:"priority"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Data        map[string]string `json:"data,omitempty"`
	Read        bool              `json:"read"`
	CreatedAt   time.Time         `json:"createdAt"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
}

// Notifier receives domain events from the reconciliation services.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
