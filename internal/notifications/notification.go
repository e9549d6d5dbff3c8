package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

// Notification is what a Sender delivers.
type Notification struct {
	Type      enums.NotificationType `json:"type"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	Context   map[string]any         `json:"context"`
}

// Sender delivers notifications to their recipient.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log instead of mailing
// them.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	fields := map[string]any{
		"notification_type": n.Type,
		"recipient":         n.Recipient,
		"subject":           n.Subject,
	}
	for k, v := range n.Context {
		fields["ctx_"+k] = v
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "notification.sent")
	return nil
}

// Build maps a decoded event payload to the notification it triggers. It
// returns nil for payloads that notify nobody.
func Build(payload any) (*Notification, error) {
	switch p := payload.(type) {
	case *payloads.UserRegisteredEvent:
		return &Notification{
			Type:      enums.NotificationRegistration,
			Recipient: p.Email,
			Subject:   "Confirm your registration",
			Context: map[string]any{
				"first_name": p.FirstName,
				"token":      p.ConfirmToken,
			},
		}, nil
	case *payloads.PasswordResetEvent:
		return &Notification{
			Type:      enums.NotificationPasswordReset,
			Recipient: p.Email,
			Subject:   "Password reset",
			Context:   map[string]any{"token": p.ResetToken},
		}, nil
	case *payloads.NewOrderEvent:
		return &Notification{
			Type:      enums.NotificationNewOrder,
			Recipient: p.Email,
			Subject:   fmt.Sprintf("Order #%d received", p.OrderID),
			Context: map[string]any{
				"order_id": p.OrderID,
				"total":    p.Total,
			},
		}, nil
	case *payloads.OrderStateChangedEvent:
		return &Notification{
			Type:      enums.NotificationOrderStatusChanged,
			Recipient: p.Email,
			Subject:   fmt.Sprintf("Order #%d is now %s", p.OrderID, p.To),
			Context: map[string]any{
				"order_id": p.OrderID,
				"from":     string(p.From),
				"state":    string(p.To),
			},
		}, nil
	case *payloads.ImportCompletedEvent:
		return &Notification{
			Type:      enums.NotificationImportCompleted,
			Recipient: p.Email,
			Subject:   fmt.Sprintf("Price list for %s imported", p.ShopName),
			Context: map[string]any{
				"task_id":            p.TaskID,
				"shop_id":            p.ShopID,
				"categories_created": p.CategoriesCreated,
				"products_created":   p.ProductsCreated,
				"listings_created":   p.ListingsCreated,
				"parameters_created": p.ParametersCreated,
				"items_skipped":      p.ItemsSkipped,
			},
		}, nil
	case *payloads.ImportFailedEvent:
		return &Notification{
			Type:      enums.NotificationImportFailed,
			Recipient: p.Email,
			Subject:   "Price list import failed",
			Context: map[string]any{
				"task_id":  p.TaskID,
				"url":      p.URL,
				"reason":   p.Reason,
				"attempts": p.Attempts,
			},
		}, nil
	default:
		return nil, fmt.Errorf("no notification for payload %T", payload)
	}
}
