package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPNotifier hands notifications to an integration service over the gateway,
// so delivery shares its retry policy.
type HTTPNotifier struct {
	gateway Gateway
	path    string
}

func NewHTTPNotifier(gateway Gateway) *HTTPNotifier {
	return &HTTPNotifier{gateway: gateway, path: "/api/notifications/send"}
}

func (n *HTTPNotifier) Send(ctx context.Context, notification *Notification) (*Receipt, error) {
	if err := validateChannel(notification.Channel); err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if notification.TenantID != "" {
		headers["X-Tenant-ID"] = notification.TenantID
	}

	response, err := n.gateway.Call(ctx, &Request{
		Method:   http.MethodPost,
		Endpoint: n.path,
		Body:     notification,
		Headers:  headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}

	raw, err := json.Marshal(response.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification receipt: %w", err)
	}

	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode notification receipt: %w", err)
	}

	return &receipt, nil
}
