// Package ai drafts tweets from commit activity using the Anthropic
// Messages API over plain HTTP.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/commeet/backend/internal/models"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"

	maxTweetLength = 280
	maxTokens      = 150

	defaultTimeout = 60 * time.Second
)

// Generator drafts tweets via the Anthropic API
type Generator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGenerator creates a tweet generator
func NewGenerator(apiKey, model string) *Generator {
	return NewGeneratorWithBaseURL(apiKey, model, anthropicAPIURL)
}

// NewGeneratorWithBaseURL creates a generator against a custom messages
// endpoint, useful for tests.
func NewGeneratorWithBaseURL(apiKey, model, baseURL string) *Generator {
	if baseURL == "" {
		baseURL = anthropicAPIURL
	}
	return &Generator{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// DraftRequest carries everything the prompt needs
type DraftRequest struct {
	Commits            []models.Commit
	Tone               models.VoiceTone
	ToneInstruction    string
	ProductDescription string
	TargetAudience     string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// DraftTweet asks the model for a single tweet summarizing the given
// commits and normalizes the output to at most 280 characters.
func (g *Generator) DraftTweet(ctx context.Context, req DraftRequest) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("anthropic response parse failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("anthropic api error: %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("anthropic api error: %d", resp.StatusCode)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Type != "text" {
		return "", fmt.Errorf("anthropic returned no text content")
	}

	return NormalizeTweet(parsed.Content[0].Text), nil
}

// BuildPrompt assembles the drafting prompt from commits and the
// user's voice settings.
func BuildPrompt(req DraftRequest) string {
	var summary strings.Builder
	for _, c := range req.Commits {
		files := make([]string, 0, len(c.FilesChanged))
		for _, f := range c.FilesChanged {
			files = append(files, f.Filename)
		}
		fmt.Fprintf(&summary, "- %s (files: %s, +%d/-%d)\n",
			c.Message, strings.Join(files, ", "), c.TotalAdditions, c.TotalDeletions)
	}

	toneGuide := "Use a casual, authentic developer voice"
	if req.ToneInstruction != "" {
		toneGuide = "Tone instruction: " + req.ToneInstruction
	} else if req.Tone != "" && req.Tone != models.VoiceToneCasual {
		toneGuide = fmt.Sprintf("Use a %s tone", req.Tone)
	}

	var context strings.Builder
	if req.ProductDescription != "" {
		fmt.Fprintf(&context, "Product context: %s\n", req.ProductDescription)
	}
	if req.TargetAudience != "" {
		fmt.Fprintf(&context, "Target audience: %s\n", req.TargetAudience)
	}

	return fmt.Sprintf(`You are helping a developer share their coding progress on Twitter/X.

Generate ONE tweet (max 280 characters) that summarizes these commits in an engaging way:

%s
%s%s

Guidelines:
- Be authentic and conversational, not corporate
- Focus on what was built/fixed, not technical git details
- Make it interesting to non-developers too if possible
- Stay under 280 characters
- Don't use hashtags unless they add value
- Emojis are okay but don't overdo it

Return ONLY the tweet text, nothing else.`, summary.String(), context.String(), toneGuide)
}

// NormalizeTweet strips wrapping quotes and enforces the length cap
func NormalizeTweet(text string) string {
	tweet := strings.TrimSpace(text)
	if strings.HasPrefix(tweet, `"`) && strings.HasSuffix(tweet, `"`) && len(tweet) > 1 {
		tweet = tweet[1 : len(tweet)-1]
	}
	if len([]rune(tweet)) > maxTweetLength {
		runes := []rune(tweet)
		tweet = string(runes[:maxTweetLength-3]) + "..."
	}
	return tweet
}
