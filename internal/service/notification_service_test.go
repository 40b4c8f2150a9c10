package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agenda/internal/events"
	"agenda/internal/models"
	"agenda/internal/ratelimit"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func messageTo(chatID int64, contains string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && strings.Contains(msg.Text, contains) && msg.ParseMode == tgbotapi.ModeMarkdown
	})
}

func TestNotificationService(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, chatID, defaultChatID int64, withPlan bool) (*mockTelegramSender, *NotificationService, *BookingService, *AppointmentService, acme) {
		t.Helper()
		db := newTestStore(t)
		company := &models.Company{Name: "Acme", Slug: "acme", Timezone: "UTC", TelegramChatID: chatID}
		if withPlan {
			plan := basicPlan(t, db)
			company.PlanID = plan.ID
		}
		require.NoError(t, db.CreateCompany(ctx, company))
		professional := &models.Professional{CompanyID: company.ID, Name: "Ana", IsActive: true}
		require.NoError(t, db.CreateProfessional(ctx, professional))
		svc := &models.Service{CompanyID: company.ID, Name: "Haircut", DurationMinutes: 30, IsActive: true}
		require.NoError(t, db.CreateService(ctx, svc))

		sender := new(mockTelegramSender)
		bus := events.NewEventBus(nopLogger())
		notifier := NewNotificationService(sender, db, newPlanService(db), defaultChatID, nopLogger())
		notifier.Subscribe(bus)

		return sender, notifier, newBookingService(db, bus), NewAppointmentService(db, bus, nopLogger()),
			acme{company: company, professional: professional, service: svc}
	}

	t.Run("new and cancelled appointments reach the company chat", func(t *testing.T) {
		sender, notifier, booking, appointments, a := setup(t, 4242, 0, false)
		sender.On("Send", messageTo(4242, "New appointment")).Return(tgbotapi.Message{}, nil).Once()
		sender.On("Send", messageTo(4242, "Appointment cancelled")).Return(tgbotapi.Message{}, nil).Once()

		appt, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "09:00"), &ratelimit.State{})
		require.NoError(t, err)
		_, err = appointments.Confirm(ctx, a.company.ID, appt.ID)
		require.NoError(t, err)
		_, err = appointments.Cancel(ctx, a.company.ID, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, drainNotifications(t, notifier))

		sender.AssertExpectations(t)
		sender.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("falls back to the default chat", func(t *testing.T) {
		sender, notifier, booking, _, a := setup(t, 0, 777, false)
		sender.On("Send", messageTo(777, "2024-06-03 09:30")).Return(tgbotapi.Message{}, nil).Once()

		_, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "09:30"), &ratelimit.State{})
		require.NoError(t, err)
		drainNotifications(t, notifier)
		sender.AssertExpectations(t)
	})

	t.Run("no chat configured", func(t *testing.T) {
		sender, notifier, booking, _, a := setup(t, 0, 0, false)
		_, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "10:00"), &ratelimit.State{})
		require.NoError(t, err)
		drainNotifications(t, notifier)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("plan without telegram notifications", func(t *testing.T) {
		sender, notifier, booking, _, a := setup(t, 4242, 0, true)
		_, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "10:30"), &ratelimit.State{})
		require.NoError(t, err)
		drainNotifications(t, notifier)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("send failure does not fail the booking", func(t *testing.T) {
		sender, notifier, booking, _, a := setup(t, 4242, 0, false)
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("telegram is down")).Once()

		appt, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "11:00"), &ratelimit.State{})
		require.NoError(t, err)
		assert.NotEmpty(t, appt.ID)
		drainNotifications(t, notifier)
		sender.AssertExpectations(t)
	})

	t.Run("slow telegram does not hold the booking", func(t *testing.T) {
		sender, notifier, booking, _, a := setup(t, 4242, 0, false)
		sent := make(chan struct{})
		sender.On("Send", messageTo(4242, "New appointment")).
			Run(func(mock.Arguments) {
				time.Sleep(500 * time.Millisecond)
				close(sent)
			}).
			Return(tgbotapi.Message{}, nil).Once()

		workerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go notifier.Start(workerCtx)

		start := time.Now()
		_, err := booking.CreateBooking(ctx, "acme", bookingFor(a, "11:30"), &ratelimit.State{})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 400*time.Millisecond)

		select {
		case <-sent:
		case <-time.After(5 * time.Second):
			t.Fatal("notification was never sent")
		}
		sender.AssertExpectations(t)
	})

	t.Run("full queue drops instead of blocking", func(t *testing.T) {
		sender, notifier, _, _, _ := setup(t, 4242, 0, false)
		for i := 0; i < notifyQueueSize; i++ {
			require.NoError(t, notifier.enqueue(&events.Event{Type: events.EventAppointmentCreated}))
		}
		assert.ErrorIs(t, notifier.enqueue(&events.Event{Type: events.EventAppointmentCreated}), errNotifyQueueFull)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})
}

// drainNotifications handles everything queued so far and reports how many
// events it saw.
func drainNotifications(t *testing.T, s *NotificationService) int {
	t.Helper()
	n := 0
	for {
		select {
		case event := <-s.queue:
			n++
			_ = s.handleAppointment(event)
		default:
			return n
		}
	}
}

func TestFormatAppointment(t *testing.T) {
	text := formatAppointment(events.EventAppointmentCreated, &events.AppointmentEventPayload{
		CompanyName:      "Acme_Studio",
		ClientName:       "Maria *Silva*",
		ClientPhone:      "+5511999990000",
		ServiceName:      "Haircut",
		ProfessionalName: "Ana",
		ScheduledAt:      clock(12, 0),
		Timezone:         "America/Sao_Paulo",
	})

	assert.Contains(t, text, "New appointment")
	assert.Contains(t, text, "2024-06-03 09:00")
	assert.Contains(t, text, `Acme\_Studio`)
	assert.Contains(t, text, `Maria \*Silva\*`)
	assert.Contains(t, text, "Haircut")
	assert.Contains(t, text, "Ana")
}
