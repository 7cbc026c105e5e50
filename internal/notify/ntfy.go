package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
)

// NtfyProvider publishes notifications to an ntfy topic.
type NtfyProvider struct {
	url    string
	topic  string
	client *http.Client
}

// NewNtfy creates a new ntfy notification provider.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	endpoint := fmt.Sprintf("%s/%s", n.url, n.topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ntfyBody(notif)))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}

	req.Header.Set("Title", ntfyTitle(notif))
	req.Header.Set("Priority", severityToNtfyPriority(notif.Severity))
	req.Header.Set("Tags", ntfyTags(notif))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ntfyTitle prefixes the title with the originating subsystem, e.g.
// "[WPM] Website Down: Portal".
func ntfyTitle(n model.Notification) string {
	if n.Source == "" {
		return n.Title
	}
	return fmt.Sprintf("[%s] %s", strings.ToUpper(n.Source), n.Title)
}

func ntfyBody(n model.Notification) string {
	if n.Timestamp.IsZero() {
		return n.Message
	}
	return n.Message + "\n" + n.Timestamp.UTC().Format(time.RFC3339)
}

func severityToNtfyPriority(severity string) string {
	switch severity {
	case "critical":
		return "5"
	case "warning":
		return "3"
	case "info":
		return "2"
	default:
		return "3"
	}
}

var sourceTags = map[string]string{
	"vman": "desktop_computer",
	"wpm":  "globe_with_meridians",
	"scm":  "shield",
	"rail": "steam_locomotive",
}

func ntfyTags(n model.Notification) string {
	var tags []string
	switch n.Severity {
	case "critical":
		tags = append(tags, "rotating_light")
	case "warning":
		tags = append(tags, "warning")
	case "info":
		tags = append(tags, "information_source")
	}
	if tag, ok := sourceTags[n.Source]; ok {
		tags = append(tags, tag)
	}
	if n.AlertType != "" {
		tags = append(tags, n.AlertType)
	}
	if n.Resolved {
		tags = append(tags, "white_check_mark")
	}
	return strings.Join(tags, ",")
}
