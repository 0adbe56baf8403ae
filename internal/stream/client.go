package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"channel-index/internal/domain"
)

// Client is a minimal HTTP client for the source bridge's pull API. It
// implements domain.MessageSource for backfill runs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.MessageSource = (*Client)(nil)

// NewClient creates a source bridge client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchHistory returns up to limit messages of a chat with message ids
// strictly greater than afterMessageID, in ascending message-id order.
// Messages without addressable key fields are dropped at this boundary.
func (c *Client) FetchHistory(ctx context.Context, chatID, afterMessageID int64, limit int) ([]domain.MessageEvent, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	q.Set("after_message_id", strconv.FormatInt(afterMessageID, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Messages []messageEvent `json:"messages"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	events := make([]domain.MessageEvent, 0, len(result.Messages))
	for _, m := range result.Messages {
		if event, ok := m.toDomain(); ok {
			events = append(events, event)
		}
	}

	// The bridge promises ascending order; enforce it anyway so backfill's
	// ordering guarantee does not depend on the collaborator's behavior.
	sort.Slice(events, func(i, j int) bool {
		return events[i].MessageID < events[j].MessageID
	})

	return events, nil
}
