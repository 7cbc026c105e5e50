// Package notify delivers alert notifications to external channels.
package notify

import (
	"context"
	"fmt"

	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/model"
)

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// FromConfig builds one provider per configured notification target.
func FromConfig(targets []config.NotificationConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(targets))
	for i, t := range targets {
		switch t.Type {
		case "ntfy":
			providers = append(providers, NewNtfy(t.URL, t.Topic))
		case "webhook":
			providers = append(providers, NewWebhook(t.URL, t.Method, t.Headers))
		default:
			return nil, fmt.Errorf("notifications[%d]: unknown type %q", i, t.Type)
		}
	}
	return providers, nil
}
