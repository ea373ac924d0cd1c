package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"discord-agent/backend/internal/session"
	"discord-agent/backend/internal/state"
)

func samplePromptInput() PromptInput {
	return PromptInput{
		Persona: state.Persona{
			Name:           "Ava",
			Age:            24,
			Gender:         "female",
			Country:        "UK",
			Backstory:      "Grew up in Leeds.",
			SarcasticSweet: 0.4,
			ChaoticCalm:    -0.2,
			MemeFrequency:  0.5,
		},
		GuildName:       "Test Guild",
		ChannelName:     "general",
		AllowedCommands: []string{"send_message", "add_reaction"},
		Participants:    []string{"bob", "alice"},
		History: []session.HistoryEntry{
			{AuthorName: "alice", Content: "morning"},
		},
		Analysis: state.LocalAnalysis{Sentiment: "positive", SentimentScore: 0.9, Emotion: "joy", Intent: "greeting"},
		Message: state.IncomingMessage{
			ID:      "m1",
			Content: "hey everyone",
			Author:  state.Author{ID: "u1", Name: "bob"},
		},
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	in := samplePromptInput()
	assert.Equal(t, BuildPrompt(in), BuildPrompt(in))
}

func TestBuildPrompt_Sections(t *testing.T) {
	prompt := BuildPrompt(samplePromptInput())

	assert.Contains(t, prompt, "Your name is Ava.")
	assert.Contains(t, prompt, "You are sweet, chaotic")
	assert.Contains(t, prompt, "cheers")
	assert.Contains(t, prompt, "- Server Name: Test Guild")
	assert.Contains(t, prompt, "- Channel: #general")
	assert.Contains(t, prompt, "- Participants: bob, alice")
	assert.Contains(t, prompt, "You can perform these actions: send_message, add_reaction")
	assert.Contains(t, prompt, "alice: morning")
	assert.Contains(t, prompt, noMemoriesMarker)
	assert.Contains(t, prompt, "- Sentiment: positive (0.90)")
	assert.Contains(t, prompt, "You MUST ONLY output a single, valid JSON object")
	assert.True(t, strings.HasSuffix(prompt, "Latest message: bob: hey everyone\n\nYour JSON response:\n"))
}

func TestBuildPrompt_Memories(t *testing.T) {
	in := samplePromptInput()
	in.Memories = []state.ScoredMemory{
		{Record: state.MemoryRecord{Text: "long text", Summary: "bob likes tea"}, Score: 0.9},
		{Record: state.MemoryRecord{Text: "alice has a cat"}, Score: 0.5},
	}

	prompt := BuildPrompt(in)
	assert.NotContains(t, prompt, noMemoriesMarker)
	assert.Contains(t, prompt, "- bob likes tea\n- alice has a cat\n")
	assert.Less(t, strings.Index(prompt, "bob likes tea"), strings.Index(prompt, "alice has a cat"))
}

func TestBuildPrompt_NoPermissions(t *testing.T) {
	in := samplePromptInput()
	in.AllowedCommands = nil

	assert.Contains(t, BuildPrompt(in), "You can perform these actions: none")
}

func TestSlangFor_UnknownCountryFallsBack(t *testing.T) {
	assert.Equal(t, slangByCountry["US"], slangFor("Atlantis"))
	assert.Equal(t, slangByCountry["India"], slangFor("India"))
}
