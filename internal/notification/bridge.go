package notification

import (
	"math"

	"fx-backoffice/internal/events"

	"github.com/rs/zerolog"
)

// Bridge subscribes the ops notifiers to workflow events. Approvals are
// forwarded only when the moved amount reaches alertAbove; zero disables
// approval alerts. Degradation and error events are always forwarded.
func Bridge(bus *events.EventBus, m *Manager, alertAbove float64, logger zerolog.Logger) {
	log := logger.With().Str("component", "notify-bridge").Logger()

	bus.Subscribe(events.EventBalanceUpdated, func(event events.Event) {
		if alertAbove <= 0 {
			return
		}
		amount := math.Abs(dataFloat(event, "delta"))
		if amount < alertAbove {
			return
		}
		err := m.SendApproval(
			dataString(event, "kind"),
			dataString(event, "request_id"),
			dataString(event, "account_type"),
			amount,
			dataFloat(event, "new_balance"),
		)
		if err != nil {
			log.Warn().Err(err).Msg("approval alert failed")
		}
	})

	bus.Subscribe(events.EventPlatformDegraded, func(event events.Event) {
		attempts := int(dataFloat(event, "attempts"))
		if attempts == 0 {
			if n, ok := event.Data["attempts"].(int); ok {
				attempts = n
			}
		}
		err := m.SendDegraded(dataString(event, "operation"), attempts, dataString(event, "error"))
		if err != nil {
			log.Warn().Err(err).Msg("degradation alert failed")
		}
	})

	bus.Subscribe(events.EventError, func(event events.Event) {
		detail := dataString(event, "message")
		if errText := dataString(event, "error"); errText != "" {
			detail += ": " + errText
		}
		if err := m.SendError(dataString(event, "source"), detail); err != nil {
			log.Warn().Err(err).Msg("error alert failed")
		}
	})
}

func dataString(event events.Event, key string) string {
	if v, ok := event.Data[key].(string); ok {
		return v
	}
	return ""
}

func dataFloat(event events.Event, key string) float64 {
	if v, ok := event.Data[key].(float64); ok {
		return v
	}
	return 0
}
