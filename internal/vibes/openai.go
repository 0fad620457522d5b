package vibes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const chatModel = openai.ChatModelGPT4_1Mini

const vibeSystemPrompt = `You generate exactly three one-word "vibe tags" for a user profile
based on facial quality metrics. Tags are short evocative English adjectives
(examples: wicked, royal, mystic, radiant, serene). Respond with a JSON
object: {"tags": ["...", "...", "..."]}. Lowercase, letters only, no
duplicates.`

type OpenAITagger struct {
	client *openai.Client
}

func NewOpenAITagger(apiKey string) *OpenAITagger {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAITagger{client: &client}
}

func (t *OpenAITagger) Name() string {
	return chatModel
}

type tagResponse struct {
	Tags []string `json:"tags"`
}

func (t *OpenAITagger) Tags(ctx context.Context, input TagInput) ([]string, error) {
	const maxRetries = 3

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(vibeSystemPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(describeMetrics(input)),
				},
			},
		},
	}

	var lastError error

	for range maxRetries {
		resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(60),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		content := resp.Choices[0].Message.Content

		var parsed tagResponse
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			lastError = err
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again.", err)),
						},
					},
				},
			)
			continue
		}

		tags := normalizeTags(parsed.Tags)
		if len(tags) < TagCount {
			return nil, fmt.Errorf("provider returned %d usable tags, want %d", len(tags), TagCount)
		}
		return tags[:TagCount], nil
	}

	return nil, fmt.Errorf("failed to parse tags JSON after %d attempts: %w", maxRetries, lastError)
}

// describeMetrics renders the quality metrics as coarse bands. Only derived
// numbers leave the process, never the image.
func describeMetrics(input TagInput) string {
	return fmt.Sprintf(
		"Profile metrics: quality %s, frontality %s, symmetry %s, resolution %s, confidence %s.",
		band(input.Metrics.Quality),
		band(input.Metrics.Frontality),
		band(input.Metrics.Symmetry),
		band(input.Metrics.Resolution),
		band(input.Metrics.Confidence),
	)
}

func band(v float64) string {
	switch {
	case v >= 0.85:
		return "excellent"
	case v >= 0.7:
		return "high"
	case v >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
