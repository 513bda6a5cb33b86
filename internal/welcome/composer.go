package welcome

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mrolabs/growthwatch/internal/config"
	"github.com/mrolabs/growthwatch/internal/models"
)

const composerSystemPrompt = `You write short, warm welcome messages sent to a social media account's newest followers. One or two sentences, casual tone, no hashtags, no emojis, no links. Address the follower by their handle.`

// Composer produces a welcome message for a newly discovered follower.
type Composer interface {
	Compose(ctx context.Context, accountUsername string, follower *models.KnownFollower) (string, error)
}

// OpenAIComposer generates welcome messages through the OpenAI chat API.
type OpenAIComposer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIComposer(cfg config.WelcomeConfig, logger *slog.Logger) *OpenAIComposer {
	return &OpenAIComposer{
		client: openai.NewClient(cfg.OpenAIKey),
		model:  cfg.OpenAIModel,
		logger: logger,
	}
}

func (c *OpenAIComposer) Compose(ctx context.Context, accountUsername string, follower *models.KnownFollower) (string, error) {
	prompt := fmt.Sprintf("Write a welcome message from @%s to their new follower @%s.", accountUsername, follower.Handle)

	apiCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:               c.model,
		MaxCompletionTokens: 120,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: composerSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("welcome composition failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("welcome composition returned no choices")
	}

	message := strings.TrimSpace(resp.Choices[0].Message.Content)
	if message == "" {
		return "", fmt.Errorf("welcome composition returned empty message")
	}

	c.logger.Debug("composed welcome message",
		"account", accountUsername,
		"follower", follower.Handle,
		"duration_ms", time.Since(start).Milliseconds())
	return message, nil
}

// StaticComposer fills a fixed template. It is the fallback when no
// OpenAI key is configured, and doubles as a test double.
type StaticComposer struct{}

func (StaticComposer) Compose(_ context.Context, accountUsername string, follower *models.KnownFollower) (string, error) {
	return fmt.Sprintf("Hey @%s, thanks for following @%s!", follower.Handle, accountUsername), nil
}
