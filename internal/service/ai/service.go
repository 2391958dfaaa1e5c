package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/config"
	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
)

// Service runs both model workloads of the system on one chat model: the
// interviewer completion chain and the knowledge extraction chain. It
// implements provider.Completer and provider.Extractor.
type Service struct {
	chatModel  model.ChatModel
	interview  compose.Runnable[map[string]any, *schema.Message]
	extraction compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	interviewTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	interviewChain := compose.NewChain[map[string]any, *schema.Message]()
	interviewChain.AppendChatTemplate(interviewTemplate)
	interviewChain.AppendChatModel(chatModel)

	interviewRunnable, err := interviewChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile interview chain: %w", err)
	}

	extractionTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{conversation}"),
	)

	extractionChain := compose.NewChain[map[string]any, *schema.Message]()
	extractionChain.AppendChatTemplate(extractionTemplate)
	extractionChain.AppendChatModel(chatModel)

	extractionRunnable, err := extractionChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile extraction chain: %w", err)
	}

	return &Service{
		chatModel:  chatModel,
		interview:  interviewRunnable,
		extraction: extractionRunnable,
	}, nil
}

// Complete generates the interviewer's next utterance. The trailing user
// message in history becomes the query slot of the prompt template; the rest
// is passed as history.
func (s *Service) Complete(ctx context.Context, system string, history []interview.Message) (provider.Reply, error) {
	query := ""
	rest := history
	if n := len(history); n > 0 && history[n-1].Role == interview.RoleUser {
		query = history[n-1].Content
		rest = history[:n-1]
	}

	input := map[string]any{
		"system":  system,
		"history": toSchemaMessages(rest),
		"query":   query,
	}

	response, err := s.interview.Invoke(ctx, input)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("run interview chain: %w", err)
	}

	reply := provider.Reply{
		Text:  strings.TrimSpace(response.Content),
		Usage: usageFrom(response),
	}

	logrus.WithFields(logrus.Fields{
		"length":            len(reply.Text),
		"prompt_tokens":     reply.Usage.PromptTokens,
		"completion_tokens": reply.Usage.CompletionTokens,
	}).Debug("interview completion generated")

	return reply, nil
}

// Extract runs the extraction chain over a formatted conversation segment
// and returns the raw model output.
func (s *Service) Extract(ctx context.Context, system, conversation string) (provider.Reply, error) {
	input := map[string]any{
		"system":       system,
		"conversation": conversation,
	}

	response, err := s.extraction.Invoke(ctx, input)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("run extraction chain: %w", err)
	}

	return provider.Reply{
		Text:  strings.TrimSpace(response.Content),
		Usage: usageFrom(response),
	}, nil
}

func toSchemaMessages(messages []interview.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case interview.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case interview.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func usageFrom(msg *schema.Message) provider.Usage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return provider.Usage{}
	}
	return provider.Usage{
		PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
		CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
	}
}
