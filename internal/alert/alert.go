// Package alert implements the notification log and CRITICAL fan-out
// (spec.md §3 "Alert", §4.7 "Emit a CRITICAL alert"). Every alert is first
// persisted via the Recorder; CRITICAL alerts are additionally pushed to
// Telegram, grounded on yohannesjx-sniperterminal's notification_service.go
// (env-configured bot token/chat ID, best-effort send, never blocks the
// caller on delivery failure).
package alert

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spotengine/internal/domain"
)

// Recorder persists an Alert row; the engine wires this to the store layer.
type Recorder func(a domain.Alert)

// Service fans CRITICAL alerts out to Telegram, best-effort, alongside the
// persisted log every level goes through.
type Service struct {
	log      zerolog.Logger
	record   Recorder
	bot      *tgbotapi.BotAPI
	chatID   int64
}

// New builds a Service. bot may be nil (Telegram disabled, matching the
// teacher's "no token configured" degrade-to-log-only path).
func New(log zerolog.Logger, record Recorder, bot *tgbotapi.BotAPI, chatID int64) *Service {
	return &Service{log: log, record: record, bot: bot, chatID: chatID}
}

// NewFromToken builds a Service from a Telegram bot token, matching
// NotificationService's env-driven construction; returns a Service with
// Telegram disabled if token is empty or the bot fails to authenticate.
func NewFromToken(log zerolog.Logger, record Recorder, token string, chatID int64) *Service {
	if token == "" {
		log.Warn().Msg("alert: no Telegram bot token configured, CRITICAL alerts will only be logged")
		return New(log, record, nil, chatID)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("alert: failed to authenticate Telegram bot, CRITICAL alerts will only be logged")
		return New(log, record, nil, chatID)
	}
	return New(log, record, bot, chatID)
}

// Emit records an alert and, for CRITICAL severity, pushes it to Telegram.
func (s *Service) Emit(userID string, level domain.AlertLevel, alertType, message string) {
	a := domain.Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Level:     level,
		Type:      alertType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	s.log.Info().Str("user", userID).Str("level", string(level)).Str("type", alertType).Msg(message)
	if s.record != nil {
		s.record(a)
	}
	if level == domain.AlertCritical {
		s.sendTelegram(a)
	}
}

func (s *Service) sendTelegram(a domain.Alert) {
	if s.bot == nil || s.chatID == 0 {
		return
	}
	text := fmt.Sprintf("CRITICAL [%s] user=%s: %s", a.Type, a.UserID, a.Message)
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		s.log.Warn().Err(err).Msg("alert: telegram send failed")
	}
}
