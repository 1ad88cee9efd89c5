// Package ai provides the model backends the chat engine dispatches to:
// an eino/Ark chat-model adapter, a generic OpenAI-compatible streaming
// client, and a canned echo backend for credential-less development.
package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/sparklearn/sparkbot/internal/config"
	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/model/chat"
)

// ArkBackend adapts eino Ark chat models to the engine's backend
// contract. Models are constructed lazily per model id and reused.
type ArkBackend struct {
	cfg config.AIConfig

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

// NewArkBackend validates that Ark credentials are configured and
// returns the backend.
func NewArkBackend(cfg config.AIConfig) (*ArkBackend, error) {
	if !cfg.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model configuration missing")
	}
	return &ArkBackend{
		cfg:    cfg,
		models: make(map[string]model.BaseChatModel),
	}, nil
}

// StreamChat dispatches one streaming completion to the configured Ark
// model.
func (b *ArkBackend) StreamChat(ctx context.Context, messages []engine.Message, opts engine.ChatOptions) (engine.Stream, error) {
	chatModel, err := b.chatModel(ctx, opts.ModelID)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, toSchemaMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("failed to stream ark response: %w", err)
	}
	return &arkStream{reader: reader}, nil
}

// chatModel returns the cached model for a model id, creating it on
// first use. A configured ARK_MODEL overrides persona model ids, since
// one Ark endpoint serves a single deployed model.
func (b *ArkBackend) chatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	if b.cfg.Model != "" {
		modelID = b.cfg.Model
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.models[modelID]; ok {
		return m, nil
	}

	m, err := b.cfg.NewChatModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %q: %w", modelID, err)
	}
	b.models[modelID] = m
	return m, nil
}

func toSchemaMessages(messages []engine.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case engine.RoleSystem:
			out = append(out, schema.SystemMessage(m.Text))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Text, nil))
		default:
			out = append(out, schema.UserMessage(m.Text))
		}
	}
	return out
}

// arkStream exposes eino's typed stream through the engine's opaque
// chunk contract. Recv yields *schema.Message values; the stream decoder
// knows how to read them.
type arkStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *arkStream) Recv() (any, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *arkStream) Close() error {
	s.reader.Close()
	return nil
}
