package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/tenantflow/pkg/template"
)

var ErrUnsupportedChannel = errors.New("unsupported notification channel")

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
	ChannelInApp = "inapp"
)

var SupportedChannels = []string{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

// Notification is a message for one recipient rendered from a named template.
type Notification struct {
	TenantID  string         `json:"tenant_id,omitempty"`
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
}

// Receipt confirms a sent notification.
type Receipt struct {
	Success   bool      `json:"success"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}

// Notifier delivers notifications for send-notification steps.
type Notifier interface {
	Send(ctx context.Context, notification *Notification) (*Receipt, error)
}

type messageTemplate struct {
	subject string
	body    string
}

var messageTemplates = map[string]messageTemplate{
	"order-approval-request": {
		subject: "Order Approval Required",
		body:    `Order #{{ or .orderId "N/A" }} requires your approval. Value: ${{ or .orderValue 0 }}`,
	},
	"order-confirmed": {
		subject: "Order Confirmed",
		body:    `Order #{{ or .orderId "N/A" }} has been confirmed.`,
	},
	"order-rejected": {
		subject: "Order Rejected",
		body:    `Order #{{ or .orderId "N/A" }} has been rejected.`,
	},
}

var fallbackTemplate = messageTemplate{
	subject: "Notification",
	body:    "You have a new notification.",
}

// RenderMessage returns the subject and body for a template name. Unknown
// names render the generic notification.
func RenderMessage(templateName string, data map[string]any) (string, string, error) {
	tmpl, ok := messageTemplates[templateName]
	if !ok {
		tmpl = fallbackTemplate
	}

	body, err := template.Render(tmpl.body, data)
	if err != nil {
		return "", "", err
	}

	return tmpl.subject, body, nil
}

func validateChannel(channel string) error {
	if !slices.Contains(SupportedChannels, channel) {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}

	return nil
}

// LogNotifier renders notifications and writes them to the log instead of a
// delivery provider.
type LogNotifier struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With("module", "log_notifier"),
		now:    time.Now,
	}
}

func (n *LogNotifier) Send(ctx context.Context, notification *Notification) (*Receipt, error) {
	if err := validateChannel(notification.Channel); err != nil {
		return nil, err
	}

	subject, body, err := RenderMessage(notification.Template, notification.Data)
	if err != nil {
		return nil, err
	}

	n.logger.InfoContext(ctx, "Sending notification",
		"tenant_id", notification.TenantID,
		"channel", notification.Channel,
		"recipient", notification.Recipient,
		"template", notification.Template,
		"subject", subject,
		"body", body,
	)

	sentAt := n.now().UTC()

	return &Receipt{
		Success:   true,
		Channel:   notification.Channel,
		Recipient: notification.Recipient,
		MessageID: notification.Channel + "-" + strconv.FormatInt(sentAt.UnixMilli(), 10),
		SentAt:    sentAt,
	}, nil
}
