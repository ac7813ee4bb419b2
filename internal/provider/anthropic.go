package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
)

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string, maxTokens int) Provider {
	return &anthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) Stream(ctx context.Context, parts *promptctx.Parts) (<-chan Event, <-chan error) {
	events := make(chan Event, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		blocks := []anthropic.ContentBlockParamUnion{
			anthropic.NewTextBlock(userText(parts)),
		}
		if len(parts.ScreenshotPNG) > 0 {
			blocks = append(blocks, anthropic.NewImageBlockBase64(
				"image/png", base64.StdEncoding.EncodeToString(parts.ScreenshotPNG)))
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: int64(p.maxTokens),
			Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		}
		if parts.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: parts.System}}
		}

		stream := p.client.Messages.NewStreaming(ctx, params)

		var dec LineDecoder
		for stream.Next() {
			event := stream.Current()
			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := e.Delta.AsAny().(anthropic.TextDelta); ok {
					if batch := dec.Feed(delta.Text); len(batch) > 0 {
						select {
						case events <- Event{Actions: batch}:
						case <-ctx.Done():
							errs <- ctx.Err()
							return
						}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("anthropic stream error: %w", err)
			return
		}
		events <- Event{Actions: dec.Flush(), Final: true}
	}()

	return events, errs
}

// userText folds the transcript window and shape summary into the user turn.
func userText(parts *promptctx.Parts) string {
	var b strings.Builder
	for _, t := range parts.Transcript {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	if parts.ShapeSummary != "" {
		b.WriteString(parts.ShapeSummary)
		b.WriteByte('\n')
	}
	b.WriteString(parts.User)
	return b.String()
}
