// Package api implements the REST collaborator contract of the upstream
// helpdesk service. Shapes only; every call is context-bound and returns the
// wire DTOs for the model layer to normalize.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/harborsupport/console/internal/model/chat"
)

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// Client talks to the upstream REST API with a static bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListConversations fetches one page of the conversation directory.
func (c *Client) ListConversations(ctx context.Context, tab chat.Tab, query string, page, size int) (Page[chat.ConversationDTO], error) {
	q := url.Values{}
	q.Set("tab", string(tab))
	if query != "" {
		q.Set("q", query)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var out Page[chat.ConversationDTO]
	err := c.doJSON(ctx, http.MethodGet, "/conversations", q, nil, &out)
	return out, err
}

// FetchMessages fetches one page of a conversation's history.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, size int) (Page[chat.MessageDTO], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var out Page[chat.MessageDTO]
	err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", q, nil, &out)
	return out, err
}

// SendMessage posts a message; the response echoes the clientMessageId.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, attachments []chat.Attachment, clientMessageID string) (chat.MessageDTO, error) {
	body := map[string]any{
		"content":         content,
		"attachments":     attachments,
		"clientMessageId": clientMessageID,
	}
	var out chat.MessageDTO
	err := c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, body, &out)
	return out, err
}

// MarkRead reports that the given party has read the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID, who string) error {
	body := map[string]string{"who": who}
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, body, nil)
}

// AssignToMe claims the conversation for the authenticated agent.
func (c *Client) AssignToMe(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/assign", nil, nil, nil)
}

// Resolve marks the conversation resolved.
func (c *Client) Resolve(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/resolve", nil, nil, nil)
}

// ToggleReaction toggles the authenticated user's reaction on a message.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.doJSON(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions/toggle", nil, body, nil)
}

// DeleteConversation removes the conversation entirely.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: upstream returned %d: %s", method, path, resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
