package assist

import (
	"strings"
	"testing"

	"github.com/harborsupport/console/internal/model/chat"
)

func TestLastCustomerMessagePicksLatest(t *testing.T) {
	transcript := []chat.Message{
		{Sender: chat.SenderCustomer, Content: "first"},
		{Sender: chat.SenderAgent, Content: "reply"},
		{Sender: chat.SenderCustomer, Content: "second"},
		{Sender: chat.SenderAgent, Content: "reply again"},
	}
	if got := lastCustomerMessage(transcript); got != "second" {
		t.Fatalf("expected latest customer message, got %q", got)
	}
}

func TestLastCustomerMessageEmptyTranscript(t *testing.T) {
	if got := lastCustomerMessage(nil); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	agentOnly := []chat.Message{{Sender: chat.SenderAgent, Content: "hi"}}
	if got := lastCustomerMessage(agentOnly); got != "" {
		t.Fatalf("expected empty for agent-only transcript, got %q", got)
	}
}

func TestBuildHistoryExcludesQueryMessage(t *testing.T) {
	transcript := []chat.Message{
		{Sender: chat.SenderCustomer, Content: "first"},
		{Sender: chat.SenderAgent, Content: "reply"},
		{Sender: chat.SenderCustomer, Content: "second"},
	}
	history := buildHistoryMessages(transcript)
	if len(history) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history))
	}
	for _, m := range history {
		if m.Content == "second" {
			t.Fatal("the query message must not appear in history")
		}
	}
}

func TestBuildHistoryRespectsLimit(t *testing.T) {
	var transcript []chat.Message
	for i := 0; i < 40; i++ {
		transcript = append(transcript, chat.Message{Sender: chat.SenderAgent, Content: "m"})
	}
	transcript = append(transcript, chat.Message{Sender: chat.SenderCustomer, Content: "q"})

	history := buildHistoryMessages(transcript)
	if len(history) > historyLimit {
		t.Fatalf("history exceeds limit: %d", len(history))
	}
}

func TestBuildSystemPromptMentionsCustomerName(t *testing.T) {
	prompt := buildSystemPrompt(chat.Conversation{ID: "c", Name: "Dana"})
	if !strings.Contains(prompt, "Dana") {
		t.Fatalf("prompt must mention the customer name: %q", prompt)
	}
}
