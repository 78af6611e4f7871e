package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/pkg/http_utils"
	"github.com/perchsec/kestrel/pkg/scan"
)

// NtfyNotifier pushes accepted findings to an ntfy topic.
type NtfyNotifier struct {
	Server string
	Topic  string
	Client *http.Client
}

// NewNtfyNotifier returns nil when no ntfy server is configured, which
// disables notifications.
func NewNtfyNotifier(client *http.Client) *NtfyNotifier {
	server := strings.TrimSuffix(viper.GetString("report.ntfy.server"), "/")
	topic := viper.GetString("report.ntfy.topic")
	if server == "" || topic == "" {
		return nil
	}
	if client == nil {
		client = http_utils.CreateHttpClient()
	}
	return &NtfyNotifier{
		Server: server,
		Topic:  topic,
		Client: client,
	}
}

type ntfyMessage struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Tags     string `json:"tags"`
	Priority int    `json:"priority"`
	Markdown bool   `json:"markdown"`
}

func (n *NtfyNotifier) Notify(ctx context.Context, program string, finding scan.Finding) error {
	description := finding.Description
	if len(description) > 140 {
		description = description[:140] + "..."
	}

	msg := ntfyMessage{
		Topic:    n.Topic,
		Title:    fmt.Sprintf("[%s] %s", strings.ToUpper(finding.Severity), program),
		Message:  fmt.Sprintf("**%s**\n%s", finding.URL, description),
		Tags:     "moneybag,bug",
		Priority: 4,
		Markdown: true,
	}
	if strings.EqualFold(finding.Severity, "critical") {
		msg.Tags = "moneybag,bug,skull"
		msg.Priority = 5
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize ntfy message: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.Server, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
