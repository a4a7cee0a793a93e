package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

// Client wraps the Telegram Bot API. Errors carry the rotator's transport
// error classes so callers can tell rate limiting and permanent failures
// apart without knowing Bot API error codes.
type Client struct {
	httpClient *http.Client
	apiURL     string
}

func NewClient(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 65 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

// SendMessage sends a text message and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	var resp messageResponse
	if err := c.post(ctx, "sendMessage", payload, &resp); err != nil {
		return 0, err
	}
	if resp.Result == nil {
		return 0, fmt.Errorf("sendMessage returned no message")
	}
	return resp.Result.MessageID, nil
}

// CopyMessage republishes a source chat message to the target chat without a
// forwarding header. A non-empty caption replaces the original caption.
func (c *Client) CopyMessage(ctx context.Context, targetChatID, sourceChatID, messageID int64, caption string) (int64, error) {
	payload := map[string]any{
		"chat_id":      targetChatID,
		"from_chat_id": sourceChatID,
		"message_id":   messageID,
	}
	if caption != "" {
		payload["caption"] = caption
	}

	var resp messageResponse
	if err := c.post(ctx, "copyMessage", payload, &resp); err != nil {
		return 0, err
	}
	if resp.Result == nil {
		return 0, fmt.Errorf("copyMessage returned no message")
	}
	return resp.Result.MessageID, nil
}

// GetUpdates long-polls for incoming updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	payload := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message", "channel_post"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	var resp getUpdatesResponse
	if err := c.post(ctx, "getUpdates", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, method string, payload any, out interface{ api() *apiResponse }) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	api := out.api()
	if api.OK {
		return nil
	}

	return classifyError(method, api)
}

// classifyError maps Bot API failures onto the transport error classes.
func classifyError(method string, api *apiResponse) error {
	switch {
	case api.ErrorCode == http.StatusTooManyRequests:
		retryAfter := 0
		if api.Parameters != nil {
			retryAfter = api.Parameters.RetryAfter
		}
		return fmt.Errorf("%s: retry after %ds: %w", method, retryAfter, rotation.ErrRateLimited)
	case api.ErrorCode == http.StatusForbidden:
		return fmt.Errorf("%s: %s: %w", method, api.Description, rotation.ErrPermissionDenied)
	case strings.Contains(strings.ToLower(api.Description), "not found"):
		return fmt.Errorf("%s: %s: %w", method, api.Description, rotation.ErrNotFound)
	default:
		return fmt.Errorf("%s failed: %d %s", method, api.ErrorCode, api.Description)
	}
}

func (r *apiResponse) api() *apiResponse { return r }
