package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/events"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	From         string
	TopicToggles map[string]bool
}

// Notify sends an email for the event when the payload carries a recipient.
func (n EmailNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "userEmail", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicPassportIssued:
		return "Seu Passaporte ROC está pronto"
	case events.TopicVoucherRedeemed:
		return "Voucher utilizado"
	case events.TopicVoucherExpired:
		return "Voucher expirado"
	default:
		return fmt.Sprintf("Notificação %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Evento %s em %s.", topic, occurred.Format(time.RFC3339))
	if code, ok := payload["code"].(string); ok && code != "" {
		summary += fmt.Sprintf("\nCódigo: %s", code)
	}
	if count, ok := payload["vouchers"].(float64); ok && count > 0 {
		summary += fmt.Sprintf("\nVouchers no passaporte: %d", int(count))
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}
