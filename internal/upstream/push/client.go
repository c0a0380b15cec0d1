// Package push consumes the upstream websocket channel and turns its frames
// into normalized engine events.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/model/chat"
	"github.com/harborsupport/console/internal/service/engine"
)

const (
	handshakeTimeout = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	maxRedialDelay   = 30 * time.Second
)

// Client maintains the push connection for the life of the process and hands
// every decoded event to the sink, in arrival order.
type Client struct {
	url   string
	token string
	sink  func(engine.Event)
}

// NewClient creates a push consumer delivering into sink.
func NewClient(url, token string, sink func(engine.Event)) *Client {
	return &Client{url: url, token: token, sink: sink}
}

// Run connects and reads until the context is cancelled, redialing with a
// growing delay after every connection loss.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			delay := time.Duration(attempt) * time.Second
			if delay > maxRedialDelay {
				delay = maxRedialDelay
			}
			logger.Warn("push dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		logger.Info("push channel connected", zap.String("url", c.url))
		c.readLoop(ctx, conn)
		conn.Close()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	for {
		if ctx.Err() != nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("push channel read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, err := DecodeEvent(payload)
		if err != nil {
			logger.Warn("dropping undecodable push frame", zap.Error(err))
			continue
		}
		c.sink(ev)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// frame is the wire shape of one push event.
type frame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`

	Message                 *chat.MessageDTO `json:"message"`
	ReplacesClientMessageID string           `json:"replacesClientMessageId"`

	Patch *patchDTO `json:"patch"`

	MessageID string             `json:"messageId"`
	Reactions []chat.ReactionDTO `json:"reactions"`
}

// patchDTO is the wire shape of a conversation patch; only present fields
// are applied.
type patchDTO struct {
	Name               *string        `json:"name"`
	Contact            *string        `json:"contact"`
	Status             *string        `json:"status"`
	AssigneeID         *string        `json:"assigneeId"`
	LastMessagePreview *string        `json:"lastMessagePreview"`
	LastMessageAt      *chat.FlexTime `json:"lastMessageAt"`
	UnreadForAssignee  *int           `json:"unreadForAssignee"`
}

// DecodeEvent normalizes one wire frame into an engine event.
func DecodeEvent(payload []byte) (engine.Event, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return engine.Event{}, fmt.Errorf("decode push frame: %w", err)
	}

	switch engine.EventType(f.Type) {
	case engine.EventMessageCreated:
		if f.Message == nil {
			return engine.Event{}, fmt.Errorf("message.created frame without message")
		}
		msg := f.Message.Normalize()
		convID := f.ConversationID
		if convID == "" {
			convID = msg.ConversationID
		}
		return engine.Event{
			Type:                    engine.EventMessageCreated,
			ConversationID:          convID,
			Message:                 &msg,
			ReplacesClientMessageID: f.ReplacesClientMessageID,
		}, nil

	case engine.EventConversationPatched:
		if f.Patch == nil {
			return engine.Event{}, fmt.Errorf("conversation.patched frame without patch")
		}
		patch := f.Patch.normalize()
		return engine.Event{
			Type:           engine.EventConversationPatched,
			ConversationID: f.ConversationID,
			Patch:          &patch,
		}, nil

	case engine.EventReactionUpdated:
		reactions := make([]chat.Reaction, 0, len(f.Reactions))
		for _, r := range f.Reactions {
			reactions = append(reactions, chat.Reaction{UserID: r.UserID, Emoji: r.Emoji})
		}
		return engine.Event{
			Type:           engine.EventReactionUpdated,
			ConversationID: f.ConversationID,
			MessageID:      f.MessageID,
			Reactions:      reactions,
		}, nil

	default:
		return engine.Event{}, fmt.Errorf("unknown push frame type %q", f.Type)
	}
}

func (p patchDTO) normalize() chat.ConversationPatch {
	out := chat.ConversationPatch{
		Name:               p.Name,
		Contact:            p.Contact,
		AssigneeID:         p.AssigneeID,
		LastMessagePreview: p.LastMessagePreview,
		UnreadForAssignee:  p.UnreadForAssignee,
	}
	if p.Status != nil {
		status := chat.NormalizeStatus(*p.Status)
		out.Status = &status
	}
	if p.LastMessageAt != nil {
		at := p.LastMessageAt.Time
		out.LastMessageAt = &at
	}
	return out
}
