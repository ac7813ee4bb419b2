package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
)

type openaiProvider struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string, maxTokens int) Provider {
	return &openaiProvider{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *openaiProvider) Name() string {
	return "openai"
}

func (p *openaiProvider) Stream(ctx context.Context, parts *promptctx.Parts) (<-chan Event, <-chan error) {
	events := make(chan Event, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		userParts := []openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(userText(parts)),
		}
		if len(parts.ScreenshotPNG) > 0 {
			dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(parts.ScreenshotPNG)
			userParts = append(userParts, openai.ImageContentPart(
				openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
		}

		messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if parts.System != "" {
			messages = append(messages, openai.SystemMessage(parts.System))
		}
		messages = append(messages, openai.UserMessage(userParts))

		stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:               openai.ChatModel(p.model),
			Messages:            messages,
			MaxCompletionTokens: openai.Int(int64(p.maxTokens)),
		})

		var dec LineDecoder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if batch := dec.Feed(text); len(batch) > 0 {
					select {
					case events <- Event{Actions: batch}:
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("openai stream error: %w", err)
			return
		}
		events <- Event{Actions: dec.Flush(), Final: true}
	}()

	return events, errs
}
