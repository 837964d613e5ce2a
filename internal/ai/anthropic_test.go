package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/commeet/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(DraftRequest{
		Commits: []models.Commit{
			{
				Message:        "feat: add dark mode",
				FilesChanged:   models.FileChangeList{{Filename: "theme.go"}, {Filename: "app.go"}},
				TotalAdditions: 40,
				TotalDeletions: 2,
			},
		},
		Tone:               models.VoiceToneExcited,
		ProductDescription: "A todo app for teams",
		TargetAudience:     "startup founders",
	})

	assert.Contains(t, prompt, "- feat: add dark mode (files: theme.go, app.go, +40/-2)")
	assert.Contains(t, prompt, "Use a excited tone")
	assert.Contains(t, prompt, "Product context: A todo app for teams")
	assert.Contains(t, prompt, "Target audience: startup founders")
	assert.Contains(t, prompt, "Return ONLY the tweet text")
}

func TestBuildPromptDefaultsToCasualVoice(t *testing.T) {
	prompt := BuildPrompt(DraftRequest{
		Commits: []models.Commit{{Message: "chore: bump deps"}},
	})
	assert.Contains(t, prompt, "Use a casual, authentic developer voice")
}

func TestBuildPromptToneInstructionWins(t *testing.T) {
	prompt := BuildPrompt(DraftRequest{
		Commits:         []models.Commit{{Message: "fix: typo"}},
		Tone:            models.VoiceToneProfessional,
		ToneInstruction: "Write like a pirate",
	})
	assert.Contains(t, prompt, "Tone instruction: Write like a pirate")
	assert.NotContains(t, prompt, "Use a professional tone")
}

func TestNormalizeTweet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text unchanged", "Shipped dark mode today!", "Shipped dark mode today!"},
		{"whitespace trimmed", "  Shipped it  \n", "Shipped it"},
		{"wrapping quotes stripped", `"Shipped dark mode today!"`, "Shipped dark mode today!"},
		{"inner quotes kept", `Shipped "dark mode" today`, `Shipped "dark mode" today`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTweet(tt.in))
		})
	}
}

func TestNormalizeTweetTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := NormalizeTweet(long)
	assert.Equal(t, 280, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestDraftTweet(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": `"Just shipped dark mode!"`},
			},
		})
	}))
	defer server.Close()

	gen := NewGeneratorWithBaseURL("test-key", "test-model", server.URL)
	tweet, err := gen.DraftTweet(context.Background(), DraftRequest{
		Commits: []models.Commit{{Message: "feat: dark mode"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Just shipped dark mode!", tweet)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Contains(t, gotReq.Messages[0].Content, "feat: dark mode")
}

func TestDraftTweetAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"message": "max_tokens required",
			},
		})
	}))
	defer server.Close()

	gen := NewGeneratorWithBaseURL("test-key", "test-model", server.URL)
	_, err := gen.DraftTweet(context.Background(), DraftRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "max_tokens required")
}
