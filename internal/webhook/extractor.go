package webhook

import (
	"strconv"
	"strings"
	"time"

	"support_router_backend/internal/queue"
	"support_router_backend/platform/phone"
	"support_router_backend/platform/sanitize"
)

const (
	objectWhatsApp = "whatsapp_business_account"
	fieldMessages  = "messages"
	typeText       = "text"
)

// extraction is the result of flattening an envelope.
type extraction struct {
	messages []queue.Inbound
	ignored  int
}

// extractMessages flattens an envelope into canonical inbound messages.
// Non-text messages, empty bodies and echoes from businessNumber are
// counted as ignored.
func extractMessages(env Envelope, businessNumber, region string, now time.Time) extraction {
	var out extraction
	if env.Object != "" && env.Object != objectWhatsApp {
		return out
	}

	business := phone.NormalizeWAID(businessNumber, region)
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != fieldMessages {
				out.ignored++
				continue
			}
			out.ignored += len(change.Value.Statuses)

			for _, msg := range change.Value.Messages {
				key := phone.NormalizeWAID(msg.From, region)
				if key == "" || msg.ID == "" {
					out.ignored++
					continue
				}
				if business != "" && key == business {
					out.ignored++
					continue
				}
				if msg.Type != typeText || msg.Text == nil {
					out.ignored++
					continue
				}
				text := sanitize.Text(msg.Text.Body)
				if text == "" {
					out.ignored++
					continue
				}
				out.messages = append(out.messages, queue.Inbound{
					Key:       key,
					MessageID: msg.ID,
					Text:      text,
					At:        parseTimestamp(msg.Timestamp, now),
				})
			}
		}
	}
	return out
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}
