package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.ultramsg.com"

	textTimeout       = 30 * time.Second
	attachmentTimeout = 90 * time.Second

	// The gateway caps captions at 1024 characters; truncate with margin.
	maxCaptionRunes = 1020

	// MaxAttachmentBytes is the largest attachment the gateway accepts.
	MaxAttachmentBytes = 5 * 1024 * 1024
)

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// SupportedAttachment reports whether the file extension is one the
// gateway accepts as an image attachment.
func SupportedAttachment(path string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Client sends messages through the gateway's HTTP API. Safe for
// concurrent use.
type Client struct {
	baseURL    string
	instanceID string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. baseURL may be empty for the public
// endpoint; tests point it at a local server.
func NewClient(instanceID, token, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	form := url.Values{
		"token": {c.token},
		"to":    {to},
		"body":  {body},
	}

	ctx, cancel := context.WithTimeout(ctx, textTimeout)
	defer cancel()

	return c.post(ctx, "/messages/chat", to, form, KindText)
}

// SendAttachment sends an image file with an optional caption. The file is
// read and base64-encoded inline; callers are expected to have validated
// existence and size beforehand, but the hard gateway limit is enforced
// here too.
func (c *Client) SendAttachment(ctx context.Context, to, path, caption string) (*SendResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure(to, KindAttachment, fmt.Sprintf("attachment unreadable: %v", err)), nil
	}
	if len(data) > MaxAttachmentBytes {
		return failure(to, KindAttachment,
			fmt.Sprintf("attachment too large: %d bytes (max %d)", len(data), MaxAttachmentBytes)), nil
	}

	mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = "image/jpeg"
		c.logger.Warn("unknown attachment extension, sending as jpeg", "path", path)
	}

	if n := len([]rune(caption)); n > maxCaptionRunes {
		const suffix = "... [truncated]"
		caption = string([]rune(caption)[:maxCaptionRunes-len(suffix)]) + suffix
		c.logger.Warn("caption truncated", "to", to, "original_length", n)
	}

	form := url.Values{
		"token":   {c.token},
		"to":      {to},
		"image":   {"data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)},
		"caption": {caption},
	}

	ctx, cancel := context.WithTimeout(ctx, attachmentTimeout)
	defer cancel()

	return c.post(ctx, "/messages/image", to, form, KindAttachment)
}

// Ping sends a short test message to verify credentials and connectivity.
func (c *Client) Ping(ctx context.Context, testNumber string) error {
	res, err := c.SendText(ctx, testNumber, "Connection test: your gateway configuration works.")
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("gateway rejected test message: %s", res.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, to string, form url.Values, kind MessageKind) (*SendResult, error) {
	reqURL := fmt.Sprintf("%s/%s%s", c.baseURL, c.instanceID, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network and timeout faults are retryable; surface them as errors.
		return failure(to, kind, err.Error()), fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(to, kind, err.Error()), fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
		res := failure(to, kind, msg)
		if resp.StatusCode >= 500 {
			return res, fmt.Errorf("gateway error: %s", msg)
		}
		return res, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return failure(to, kind, fmt.Sprintf("invalid gateway response: %s", truncate(string(body), 200))), nil
	}

	if sent, _ := payload["sent"].(bool); sent {
		c.logger.Debug("message sent", "to", to, "kind", kind)
		return &SendResult{Identifier: to, Success: true, Raw: payload, Kind: kind}, nil
	}

	res := failure(to, kind, gatewayError(payload))
	res.Raw = payload
	c.logger.Debug("gateway rejected message", "to", to, "kind", kind, "error", res.Error)
	return res, nil
}

// gatewayError assembles the most specific error text the gateway offers.
func gatewayError(payload map[string]any) string {
	var parts []string
	for _, key := range []string{"error", "message", "description"} {
		if v, ok := payload[key]; ok && v != nil {
			if s := fmt.Sprintf("%v", v); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return "send rejected by gateway"
	}
	return strings.Join(parts, " | ")
}

func failure(to string, kind MessageKind, msg string) *SendResult {
	return &SendResult{Identifier: to, Success: false, Error: msg, Kind: kind}
}

// truncate caps s at n runes. Gateway bodies can carry multi-byte text,
// so cutting at a byte offset could split a rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
