// Package whatsapp talks to the WhatsApp Cloud (Graph) API.
package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/reliability"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const maxMediaBytes = 100 << 20

var ErrNotConfigured = errors.New("whatsapp access token or phone number id not configured")

type Config struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	Retry         reliability.RetryPolicy
}

type Client struct {
	cfg      Config
	http     *http.Client
	logger   *slog.Logger
	onError  func(op string)
	maxMedia int64
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "whatsapp"),
		maxMedia: maxMediaBytes,
	}
}

// SetErrorHook registers a callback invoked once per failed API operation,
// after retries are exhausted.
func (c *Client) SetErrorHook(hook func(op string)) {
	c.onError = hook
}

func (c *Client) configured() bool {
	return c.cfg.AccessToken != "" && c.cfg.PhoneNumberID != ""
}

// FetchMedia resolves a media id to its download URL and fetches the bytes.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if c.cfg.AccessToken == "" {
		return nil, ErrNotConfigured
	}
	var data []byte
	err := c.retry(ctx, "fetch_media", func(ctx context.Context) error {
		var meta struct {
			URL string `json:"url"`
		}
		if err := c.getJSON(ctx, "media lookup", c.cfg.BaseURL+"/"+mediaID, &meta); err != nil {
			return err
		}
		if meta.URL == "" {
			return fmt.Errorf("media %s has no download url", mediaID)
		}
		body, err := c.get(ctx, "media download", meta.URL)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	return data, err
}

// UploadMedia stores data on the platform and returns the new media id.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mime, filename string) (string, error) {
	if !c.configured() {
		return "", ErrNotConfigured
	}
	if filename == "" {
		filename = "document.pdf"
	}
	var id string
	err := c.retry(ctx, "upload_media", func(ctx context.Context) error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("messaging_product", "whatsapp")
		_ = w.WriteField("type", mime)
		fw, err := w.CreatePart(filePartHeader(filename, mime))
		if err != nil {
			return fmt.Errorf("create file part: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write file part: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close multipart: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+c.cfg.PhoneNumberID+"/media", &buf)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		var out struct {
			ID string `json:"id"`
		}
		if err := c.doJSON(req, "media upload", &out); err != nil {
			return err
		}
		if out.ID == "" {
			return errors.New("media upload returned no id")
		}
		id = out.ID
		return nil
	})
	return id, err
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.sendMessage(ctx, "send_text", map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": text},
	})
}

// SendButtons sends quick-reply buttons; anything past the third is dropped.
func (c *Client) SendButtons(ctx context.Context, to, text string, buttons []protocol.Button) error {
	if len(buttons) > protocol.MaxButtons {
		buttons = buttons[:protocol.MaxButtons]
	}
	replies := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	return c.sendMessage(ctx, "send_buttons", map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": text},
			"action": map[string]any{"buttons": replies},
		},
	})
}

func (c *Client) SendMenu(ctx context.Context, to string, menu protocol.Menu) error {
	interactive := map[string]any{
		"type": "list",
		"body": map[string]string{"text": menu.Body},
		"action": map[string]any{
			"button":   menu.ButtonLabel,
			"sections": menu.Sections,
		},
	}
	if menu.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": menu.Header}
	}
	if menu.Footer != "" {
		interactive["footer"] = map[string]string{"text": menu.Footer}
	}
	return c.sendMessage(ctx, "send_menu", map[string]any{
		"to":          to,
		"type":        "interactive",
		"interactive": interactive,
	})
}

func (c *Client) SendDocument(ctx context.Context, to, mediaID, filename, caption string) error {
	doc := map[string]string{"id": mediaID, "filename": filename}
	if caption != "" {
		doc["caption"] = caption
	}
	return c.sendMessage(ctx, "send_document", map[string]any{
		"to":       to,
		"type":     "document",
		"document": doc,
	})
}

func (c *Client) SendImage(ctx context.Context, to, mediaID, caption string) error {
	img := map[string]string{"id": mediaID}
	if caption != "" {
		img["caption"] = caption
	}
	return c.sendMessage(ctx, "send_image", map[string]any{
		"to":    to,
		"type":  "image",
		"image": img,
	})
}

// MarkSeenAndTyping shows read receipts and a typing indicator for messageID.
func (c *Client) MarkSeenAndTyping(ctx context.Context, to, messageID string) error {
	if messageID == "" {
		return nil
	}
	return c.post(ctx, "mark_seen", map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
		"typing_indicator":  map[string]string{"type": "text"},
	})
}

func (c *Client) sendMessage(ctx context.Context, op string, payload map[string]any) error {
	payload["messaging_product"] = "whatsapp"
	payload["recipient_type"] = "individual"
	if err := c.post(ctx, op, payload); err != nil {
		return err
	}
	if to, ok := payload["to"].(string); ok {
		c.logger.Debug("message sent", "op", op, "to", policy.MaskSender(to))
	}
	return nil
}

func (c *Client) post(ctx context.Context, op string, payload map[string]any) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	return c.retry(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+c.cfg.PhoneNumberID+"/messages", bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doJSON(req, op, nil)
	})
}

func (c *Client) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	err := reliability.Retry(ctx, c.cfg.Retry, fn)
	if err != nil {
		c.logger.Warn("whatsapp api call failed", "op", op, "error", err)
		if c.onError != nil {
			c.onError(op)
		}
	}
	return err
}

func (c *Client) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.doJSON(req, op, out)
}

func (c *Client) get(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, c.maxMedia+1))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", op, err)
	}
	if int64(len(body)) > c.maxMedia {
		return nil, fmt.Errorf("%s body exceeds %d bytes", op, c.maxMedia)
	}
	return body, nil
}

func (c *Client) doJSON(req *http.Request, op string, out any) error {
	res, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Op: op, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return res, nil
}

// VerifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the raw request body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func filePartHeader(filename, mime string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mime)
	return h
}
