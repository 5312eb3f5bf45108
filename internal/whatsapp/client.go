// Package whatsapp sends text messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/config"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/phone"
)

// ErrNotSent marks failures where the Cloud API certainly did not accept the
// message: rate limits and connections that were never established. Any
// other failure may have been delivered.
var ErrNotSent = errors.New("message not accepted by whatsapp")

// NotSent reports whether err is safe to retry without risking a duplicate.
func NotSent(err error) bool {
	return errors.Is(err, ErrNotSent)
}

type Client struct {
	baseURL       string
	version       string
	phoneNumberID string
	accessToken   string
	region        string
	http          *http.Client
	log           *logger.Logger
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewClient(cfg config.ChannelConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.GetWhatsAppAPIBaseURL(), "/"),
		version:       cfg.GetWhatsAppAPIVersion(),
		phoneNumberID: cfg.GetWhatsAppPhoneNumberID(),
		accessToken:   cfg.GetWhatsAppAccessToken(),
		region:        cfg.GetDefaultPhoneRegion(),
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

// SendText sends a plain text message and returns the channel message id.
// Rate limits, server errors and network failures are transient; other 4xx
// responses mean the recipient or payload is invalid. Only failures wrapping
// ErrNotSent are known not to have been delivered.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	recipient := phone.NormalizeWAID(to, c.region)

	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if neverConnected(err) {
			err = fmt.Errorf("%w: %w", ErrNotSent, err)
		}
		return "", apperr.Transient("whatsapp request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperr.Transient("whatsapp rate limited", fmt.Errorf("%w: %w", ErrNotSent, upstreamError(resp.StatusCode, data)))
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", apperr.Transient("whatsapp unavailable", upstreamError(resp.StatusCode, data))
	case resp.StatusCode >= http.StatusBadRequest:
		return "", apperr.Wrap(apperr.KindValidation, "whatsapp rejected message", upstreamError(resp.StatusCode, data))
	}

	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp response carried no message id")
	}

	c.log.Debug("whatsapp message sent", "to", recipient, "messageId", out.Messages[0].ID)
	return out.Messages[0].ID, nil
}

// neverConnected reports a failure before the request could reach the API.
func neverConnected(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func upstreamError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("status %d code %d: %s", status, e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
}
