package vibes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiTagger struct {
	client *genai.Client
}

func NewGeminiTagger(ctx context.Context, apiKey string) (*GeminiTagger, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiTagger{client: client}, nil
}

func (t *GeminiTagger) Name() string {
	return geminiModel
}

func (t *GeminiTagger) Tags(ctx context.Context, input TagInput) ([]string, error) {
	const maxRetries = 3

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: vibeSystemPrompt + "\n\n" + describeMetrics(input)},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error

	for range maxRetries {
		result, err := t.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}

		var parsed tagResponse
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again.", err)}},
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
