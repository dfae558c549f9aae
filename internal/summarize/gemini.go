package summarize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"vidbrief/internal/retry"
)

// Gemini summarizes transcripts through the Gemini API.
type Gemini struct {
	apiKey string
	model  string
}

// NewGemini creates the Gemini provider.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

// Summarize sends the transcript to Gemini and returns the summary text.
// Quota and availability errors are marked transient for the retry layer.
func (g *Gemini) Summarize(ctx context.Context, transcript string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(transcript)), nil)
	if err != nil {
		if isGeminiTransient(err) {
			return "", retry.Transient(fmt.Errorf("generate content: %w", err))
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text")
	}

	return text.String(), nil
}

func isGeminiTransient(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"429", "quota", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "500", "503"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
