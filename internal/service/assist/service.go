// Package assist drafts suggested replies for the agent from the
// conversation transcript. The whole package is optional; the daemon runs
// without it when no model credentials are configured.
package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/config"
	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/model/chat"
)

const historyLimit = 12

// Service wraps the chat model behind a compiled prompt chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the reply-draft chain from the configured model.
func NewService(ctx context.Context, cfg config.AssistConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// Suggest produces one reply draft for the given conversation.
func (s *Service) Suggest(ctx context.Context, conv chat.Conversation, transcript []chat.Message) (string, error) {
	query := lastCustomerMessage(transcript)
	if query == "" {
		return "", fmt.Errorf("no customer message to reply to")
	}

	input := map[string]any{
		"system":  buildSystemPrompt(conv),
		"history": buildHistoryMessages(transcript),
		"query":   query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	logger.Debug("generated reply draft",
		zap.String("conversation_id", conv.ID),
		zap.Int("length", len(response.Content)))
	return response.Content, nil
}

func buildSystemPrompt(conv chat.Conversation) string {
	var b strings.Builder
	b.WriteString("You are drafting a reply for a customer support agent. ")
	b.WriteString("Write a short, courteous answer to the customer's latest message. ")
	b.WriteString("Do not invent order numbers, refunds, or policy details.")
	if conv.Name != "" {
		b.WriteString(fmt.Sprintf(" The customer's name is %s.", conv.Name))
	}
	return b.String()
}

func buildHistoryMessages(transcript []chat.Message) []*schema.Message {
	if len(transcript) == 0 {
		return nil
	}

	startIdx := 0
	if len(transcript) > historyLimit {
		startIdx = len(transcript) - historyLimit
	}

	// The latest customer message becomes the query, so it is excluded here.
	lastCustomer := lastCustomerIndex(transcript)

	history := make([]*schema.Message, 0, len(transcript)-startIdx)
	for i, msg := range transcript[startIdx:] {
		if startIdx+i == lastCustomer {
			continue
		}
		switch msg.Sender {
		case chat.SenderCustomer:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAgent:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func lastCustomerIndex(transcript []chat.Message) int {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Sender == chat.SenderCustomer {
			return i
		}
	}
	return -1
}

func lastCustomerMessage(transcript []chat.Message) string {
	if i := lastCustomerIndex(transcript); i >= 0 {
		return transcript[i].Content
	}
	return ""
}
