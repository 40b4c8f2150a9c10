package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentConfirmed = "appointment_confirmed"
	EventAppointmentCancelled = "appointment_cancelled"
	EventTimeBlockCreated     = "time_block_created"
	EventTimeBlockUpdated     = "time_block_updated"
	EventTimeBlockDeleted     = "time_block_deleted"
)

// AppointmentEventPayload is the appointment snapshot handed to subscribers.
type AppointmentEventPayload struct {
	AppointmentID    string    `json:"appointment_id"`
	CompanyID        string    `json:"company_id"`
	CompanyName      string    `json:"company_name"`
	TelegramChatID   int64     `json:"telegram_chat_id,omitempty"`
	ServiceID        string    `json:"service_id"`
	ServiceName      string    `json:"service_name,omitempty"`
	ProfessionalID   string    `json:"professional_id,omitempty"`
	ProfessionalName string    `json:"professional_name,omitempty"`
	ClientName       string    `json:"client_name"`
	ClientPhone      string    `json:"client_phone"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Timezone         string    `json:"timezone"`
	Status           string    `json:"status"`
}

type TimeBlockEventPayload struct {
	BlockID        string    `json:"block_id"`
	CompanyID      string    `json:"company_id"`
	ProfessionalID string    `json:"professional_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Reason         string    `json:"reason,omitempty"`
}

type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously in
// subscription order; their errors are logged, never returned to publishers.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	b.Publish(&Event{Type: eventType, Payload: raw})
	return nil
}
