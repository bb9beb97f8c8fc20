package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/config"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

const listPageLimit = 200

// Client is a minimal Slack Web API client covering the four calls the agent
// needs: auth.test, conversations.list, conversations.history and
// chat.postMessage.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	historyLimit int
}

// NewClient creates a Slack Web API client
func NewClient(cfg *config.SlackConfig) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.BotToken,
		historyLimit: cfg.HistoryLimit,
	}
}

// Identity is the calling bot's identity as reported by auth.test.
type Identity struct {
	UserID string `json:"user_id"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	Team   string `json:"team"`
}

type apiEnvelope struct {
	OK               bool   `json:"ok"`
	ErrorCode        string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (e *apiEnvelope) apiError() error {
	if e.OK {
		return nil
	}
	return &APIError{Code: e.ErrorCode, StatusCode: http.StatusOK}
}

// AuthTest verifies the token and returns the bot's identity.
func (c *Client) AuthTest(ctx context.Context) (*Identity, error) {
	var resp struct {
		apiEnvelope
		Identity
	}
	if err := c.postForm(ctx, "auth.test", nil, &resp); err != nil {
		return nil, fmt.Errorf("auth.test: %w", err)
	}
	if err := resp.apiError(); err != nil {
		return nil, fmt.Errorf("auth.test: %w", err)
	}
	return &resp.Identity, nil
}

// ListChannels returns the workspace's public channels, following pagination.
func (c *Client) ListChannels(ctx context.Context) ([]models.ChannelMeta, error) {
	var out []models.ChannelMeta
	cursor := ""
	for {
		params := url.Values{}
		params.Set("types", "public_channel,private_channel")
		params.Set("exclude_archived", "true")
		params.Set("limit", strconv.Itoa(listPageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			apiEnvelope
			Channels []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				IsMember bool   `json:"is_member"`
			} `json:"channels"`
		}
		if err := c.get(ctx, "conversations.list", params, &resp); err != nil {
			return nil, fmt.Errorf("conversations.list: %w", err)
		}
		if err := resp.apiError(); err != nil {
			return nil, fmt.Errorf("conversations.list: %w", err)
		}

		for _, ch := range resp.Channels {
			out = append(out, models.ChannelMeta{ID: ch.ID, Name: ch.Name, IsMember: ch.IsMember})
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return out, nil
		}
	}
}

// ListChannelMessages fetches recent messages for a channel. With oldest > 0
// the fetch is inclusive, so messages with timestamp >= oldest are returned.
// Results are ordered oldest first (Slack returns newest first).
func (c *Client) ListChannelMessages(ctx context.Context, channelID string, oldest float64) ([]models.Message, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("limit", strconv.Itoa(c.historyLimit))
	params.Set("inclusive", "true")
	if oldest > 0 {
		params.Set("oldest", FormatTimestamp(oldest))
	}

	var resp struct {
		apiEnvelope
		Messages []struct {
			Type  string `json:"type"`
			User  string `json:"user"`
			BotID string `json:"bot_id"`
			Text  string `json:"text"`
			TS    string `json:"ts"`
		} `json:"messages"`
	}
	if err := c.get(ctx, "conversations.history", params, &resp); err != nil {
		return nil, fmt.Errorf("conversations.history: %w", err)
	}
	if err := resp.apiError(); err != nil {
		return nil, fmt.Errorf("conversations.history: %w", err)
	}

	out := make([]models.Message, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		item := resp.Messages[i]
		if item.Type != "message" || item.TS == "" {
			continue
		}
		ts, err := ParseTimestamp(item.TS)
		if err != nil {
			logrus.Warnf("Skipping message with unparseable ts %q in channel %s", item.TS, channelID)
			continue
		}
		author := item.User
		if author == "" {
			author = item.BotID
		}
		out = append(out, models.Message{
			ID:        item.TS,
			ChannelID: channelID,
			AuthorID:  author,
			Text:      item.Text,
			Timestamp: ts,
		})
	}
	return out, nil
}

// PostedMessage is the result of a successful chat.postMessage call.
type PostedMessage struct {
	ChannelID string
	MessageID string
	Timestamp float64
}

// PostMessage sends a text message to a channel.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) (*PostedMessage, error) {
	payload := map[string]string{
		"channel": channelID,
		"text":    text,
	}

	var resp struct {
		apiEnvelope
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := c.postJSON(ctx, "chat.postMessage", payload, &resp); err != nil {
		return nil, fmt.Errorf("chat.postMessage: %w", err)
	}
	if err := resp.apiError(); err != nil {
		return nil, fmt.Errorf("chat.postMessage: %w", err)
	}

	ts, err := ParseTimestamp(resp.TS)
	if err != nil {
		return nil, fmt.Errorf("chat.postMessage: unparseable ts %q", resp.TS)
	}
	return &PostedMessage{ChannelID: resp.Channel, MessageID: resp.TS, Timestamp: ts}, nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	u := c.baseURL + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method,
		strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method,
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{
			Code:       "rate_limited",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header),
		}
	}
	if resp.StatusCode >= 500 {
		return &APIError{Code: "internal_error", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryAfter parses the Retry-After header, defaulting to 1s when absent.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}

// ParseTimestamp converts a Slack ts string to epoch seconds.
func ParseTimestamp(ts string) (float64, error) {
	return strconv.ParseFloat(ts, 64)
}

// FormatTimestamp converts epoch seconds to the ts form Slack accepts.
func FormatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}
