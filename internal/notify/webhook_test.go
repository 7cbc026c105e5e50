package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookName(t *testing.T) {
	p := NewWebhook("http://localhost/hook", "", nil)
	assert.Equal(t, "webhook", p.Name())
}

func TestWebhookSendJSON(t *testing.T) {
	var gotBody model.Notification
	var gotHeader http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL+"/hook", "", nil)
	notif := model.Notification{
		AlertType: "server_drift",
		Severity:  "warning",
		Title:     "Configuration Drift: web-01",
		Message:   "[web-01] 2 configuration change(s) detected",
		Source:    "scm",
		Subject:   "web-01",
		Timestamp: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Metadata:  map[string]string{"environment": "production"},
	}

	err := p.Send(context.Background(), notif)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "server_drift", gotHeader.Get(HeaderEvent))
	assert.Equal(t, "scm", gotHeader.Get(HeaderSource))
	_, err = uuid.Parse(gotHeader.Get(HeaderDelivery))
	assert.NoError(t, err, "delivery header should be a UUID")

	assert.Equal(t, notif.AlertType, gotBody.AlertType)
	assert.Equal(t, notif.Title, gotBody.Title)
	assert.Equal(t, notif.Source, gotBody.Source)
	assert.Equal(t, "production", gotBody.Metadata["environment"])
	assert.True(t, notif.Timestamp.Equal(gotBody.Timestamp))
}

func TestWebhookDeliveryIDUnique(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get(HeaderDelivery))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, "", nil)
	for range 2 {
		require.NoError(t, p.Send(context.Background(), model.Notification{AlertType: "x"}))
	}
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestWebhookCustomHeaders(t *testing.T) {
	var gotAuth, gotCustom string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, "", map[string]string{
		"Authorization": "Bearer tok123",
		"X-Custom":      "my-value",
	})
	require.NoError(t, p.Send(context.Background(), model.Notification{Severity: "info"}))

	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "my-value", gotCustom)
}

func TestWebhookMethod(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   string
	}{
		{"default is POST", "", http.MethodPost},
		{"override", http.MethodPut, http.MethodPut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			p := NewWebhook(srv.URL, tt.method, nil)
			require.NoError(t, p.Send(context.Background(), model.Notification{}))
			assert.Equal(t, tt.want, gotMethod)
		})
	}
}

func TestWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, "", nil)
	err := p.Send(context.Background(), model.Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSendCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Send(ctx, model.Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook: send:")
}

func TestWebhookSendBadURL(t *testing.T) {
	p := NewWebhook("://invalid", "", nil)
	err := p.Send(context.Background(), model.Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook:")
}

// ----------------------------------------------------------------------------
// FromConfig
// ----------------------------------------------------------------------------

func TestFromConfig(t *testing.T) {
	providers, err := FromConfig([]config.NotificationConfig{
		{Type: "ntfy", URL: "https://ntfy.sh/", Topic: "ioc"},
		{Type: "webhook", URL: "https://hooks.example/ioc", Method: http.MethodPut},
	})
	require.NoError(t, err)
	require.Len(t, providers, 2)

	ntfy, ok := providers[0].(*NtfyProvider)
	require.True(t, ok)
	assert.Equal(t, "https://ntfy.sh", ntfy.url)
	assert.Equal(t, "ioc", ntfy.topic)

	hook, ok := providers[1].(*WebhookProvider)
	require.True(t, ok)
	assert.Equal(t, http.MethodPut, hook.method)
}

func TestFromConfig_Empty(t *testing.T) {
	providers, err := FromConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestFromConfig_UnknownType(t *testing.T) {
	_, err := FromConfig([]config.NotificationConfig{{Type: "smtp"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "smtp"`)
}
