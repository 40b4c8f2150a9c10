package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	notifyTimeout   = 5 * time.Second
	notifyQueueSize = 256
)

var errNotifyQueueFull = errors.New("notification queue is full")

// NotificationService tells company staff about new and cancelled
// appointments through Telegram. Bus handlers only enqueue; Start sends.
type NotificationService struct {
	bot           domain.TelegramSender
	repo          domain.Repository
	plans         *PlanService
	defaultChatID int64
	queue         chan *events.Event
	logger        *zerolog.Logger
}

func NewNotificationService(bot domain.TelegramSender, repo domain.Repository, plans *PlanService, defaultChatID int64, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		bot:           bot,
		repo:          repo,
		plans:         plans,
		defaultChatID: defaultChatID,
		queue:         make(chan *events.Event, notifyQueueSize),
		logger:        logger,
	}
}

// Subscribe registers the notifier on the bus.
func (s *NotificationService) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAppointmentCreated, s.enqueue)
	bus.Subscribe(events.EventAppointmentCancelled, s.enqueue)
}

// enqueue never blocks the publisher. A full queue drops the event.
func (s *NotificationService) enqueue(event *events.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
		return errNotifyQueueFull
	}
}

// Start sends queued notifications until ctx is done.
func (s *NotificationService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handleAppointment(event); err != nil {
				s.logger.Warn().Err(err).Str("event", event.Type).Str("event_id", event.ID).Msg("telegram notification failed")
			}
		}
	}
}

func (s *NotificationService) handleAppointment(event *events.Event) error {
	var p events.AppointmentEventPayload
	if err := event.Decode(&p); err != nil {
		return err
	}

	chatID := p.TelegramChatID
	if chatID == 0 {
		chatID = s.defaultChatID
	}
	if chatID == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if ok, err := s.enabled(ctx, p.CompanyID); err != nil || !ok {
		return err
	}

	if _, err := s.SendMarkdown(chatID, formatAppointment(event.Type, &p)); err != nil {
		return fmt.Errorf("failed to notify chat %d: %w", chatID, err)
	}
	s.logger.Debug().Str("event_id", event.ID).Int64("chat_id", chatID).Msg("telegram notification sent")
	return nil
}

// enabled reports whether the company plan allows telegram notifications.
func (s *NotificationService) enabled(ctx context.Context, companyID string) (bool, error) {
	if s.plans == nil || companyID == "" {
		return true, nil
	}
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to load company %s: %w", companyID, err)
	}
	if err := s.plans.RequireFeature(ctx, company, models.FeatureTelegramNotifications); err != nil {
		if errors.Is(err, domain.ErrFeatureNotAvailable) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *NotificationService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return s.bot.Send(msg)
}

func (s *NotificationService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return s.bot.Send(msg)
}

func formatAppointment(eventType string, p *events.AppointmentEventPayload) string {
	title := "📅 *New appointment*"
	if eventType == events.EventAppointmentCancelled {
		title = "❌ *Appointment cancelled*"
	}

	loc := time.UTC
	if p.Timezone != "" {
		if l, err := time.LoadLocation(p.Timezone); err == nil {
			loc = l
		}
	}
	at := p.ScheduledAt.In(loc)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	if p.CompanyName != "" {
		fmt.Fprintf(&b, "🏢 %s\n", escapeMarkdown(p.CompanyName))
	}
	fmt.Fprintf(&b, "🗓 %s %s\n", at.Format(models.DateLayout), at.Format(models.TimeLayout))
	fmt.Fprintf(&b, "👤 %s, %s\n", escapeMarkdown(p.ClientName), escapeMarkdown(p.ClientPhone))
	if p.ServiceName != "" {
		fmt.Fprintf(&b, "✂️ %s\n", escapeMarkdown(p.ServiceName))
	}
	if p.ProfessionalName != "" {
		fmt.Fprintf(&b, "🧑 %s\n", escapeMarkdown(p.ProfessionalName))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
