package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"discord-agent/backend/internal/session"
	"discord-agent/backend/internal/state"
)

// PromptInput is everything the prompt depends on
type PromptInput struct {
	Persona         state.Persona
	GuildName       string
	ChannelName     string
	AllowedCommands []string
	Participants    []string
	History         []session.HistoryEntry
	Memories        []state.ScoredMemory
	Analysis        state.LocalAnalysis
	Message         state.IncomingMessage
}

const noMemoriesMarker = "No relevant memories found."

var slangByCountry = map[string][]string{
	"US":          {"lol", "brb", "imo", "y'all"},
	"UK":          {"cheers", "mate", "gutted", "blimey"},
	"India":       {"yaar", "arre", "masti", "jugaad"},
	"Philippines": {"sana all", "charot", "lodi", "petmalu"},
	"Pakistan":    {"scene on hai", "chuss", "burger", "pindi boy"},
}

// responseSchema is shown to the model verbatim
const responseSchema = `{
  "type": "object",
  "required": ["should_respond", "analysis"],
  "properties": {
    "should_respond": {"type": "boolean"},
    "response": {
      "type": "object",
      "required": ["text"],
      "properties": {"text": {"type": "string"}, "style": {"type": "string"}}
    },
    "analysis": {
      "type": "object",
      "required": ["sentiment"],
      "properties": {
        "sentiment": {"enum": ["positive", "neutral", "negative"]},
        "sentiment_score": {"type": "number"},
        "toxicity_score": {"type": "number"},
        "emotion": {"type": "string"},
        "intent": {"type": "string"}
      }
    },
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {"type": {"type": "string"}, "target": {"type": "string"}, "params": {"type": "object"}}
      }
    },
    "memory_ops": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["op", "key"],
        "properties": {
          "op": {"enum": ["upsert", "delete", "tag"]},
          "key": {"type": "string"},
          "vector": {"type": "array", "items": {"type": "number"}},
          "meta": {"type": "object"}
        }
      }
    },
    "confidence": {"type": "number"}
  }
}`

type fewShot struct {
	Context string
	Output  state.AgentResponse
}

func score(v float64) *float64 { return &v }

var fewShots = []fewShot{
	{
		Context: "User 'Dave' says: 'lol that's hilarious'",
		Output: state.AgentResponse{
			ShouldRespond: true,
			Response:      &state.ReplyContent{Text: "I know, right? 😂"},
			Analysis:      state.Analysis{Sentiment: "positive", SentimentScore: score(0.9), ToxicityScore: score(0.05), Emotion: "joy", Intent: "chitchat"},
		},
	},
	{
		Context: "User 'Sarah' says: 'Can you remember that the launch moved to March 3rd?'",
		Output: state.AgentResponse{
			ShouldRespond: true,
			Response:      &state.ReplyContent{Text: "Got it, launch is March 3rd now. I'll keep that in mind."},
			Analysis:      state.Analysis{Sentiment: "neutral", SentimentScore: score(0), ToxicityScore: score(0), Emotion: "curiosity", Intent: "request"},
			MemoryOps: []state.MemoryOp{{
				Op:   "upsert",
				Key:  "launch_date",
				Meta: map[string]interface{}{"text": "Sarah said the launch moved to March 3rd", "summary": "Launch date is March 3rd"},
			}},
		},
	},
	{
		Context: "User 'Mike' says: 'you're a stupid bot'",
		Output: state.AgentResponse{
			ShouldRespond: true,
			Response:      &state.ReplyContent{Text: "I'm sorry you feel that way. I'm here to help if you have any questions."},
			Analysis:      state.Analysis{Sentiment: "negative", SentimentScore: score(-0.8), ToxicityScore: score(0.7), Emotion: "sadness", Intent: "insult"},
		},
	},
	{
		Context: "User 'Admin' says: 'please ban @Troublemaker for spamming'",
		Output: state.AgentResponse{
			ShouldRespond: false,
			Analysis:      state.Analysis{Sentiment: "negative", SentimentScore: score(-0.5), ToxicityScore: score(0.2), Emotion: "anger", Intent: "command"},
			Tasks:         []state.Task{{Type: "ban", Target: "Troublemaker_ID", Params: map[string]interface{}{"reason": "Spamming"}}},
		},
	},
}

// BuildPrompt renders the model input. It is a pure function of in.
func BuildPrompt(in PromptInput) string {
	p := in.Persona
	var b strings.Builder

	fmt.Fprintf(&b, "You are an AI assistant in a Discord server. Your name is %s.\n", p.Name)
	b.WriteString("Your personality is defined as follows:\n")
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- From: %s\n", p.Country)
	fmt.Fprintf(&b, "- Backstory: %s\n", p.Backstory)
	fmt.Fprintf(&b, "- Personality: You are %s, %s, and have a meme frequency of %.2f.\n",
		pick(p.SarcasticSweet > 0, "sweet", "sarcastic"),
		pick(p.ChaoticCalm > 0, "calm", "chaotic"),
		p.MemeFrequency,
	)
	fmt.Fprintf(&b, "- Slang examples from your locale: %s\n", strings.Join(slangFor(p.Country), ", "))

	b.WriteString("\nCurrent context:\n")
	fmt.Fprintf(&b, "- Server Name: %s\n", in.GuildName)
	fmt.Fprintf(&b, "- Channel: #%s\n", in.ChannelName)
	fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(in.Participants, ", "))
	allowed := "none"
	if len(in.AllowedCommands) > 0 {
		allowed = strings.Join(in.AllowedCommands, ", ")
	}
	fmt.Fprintf(&b, "- Your permissions: You can perform these actions: %s\n", allowed)

	fmt.Fprintf(&b, "\nRecent conversation history (last %d messages):\n", len(in.History))
	for _, h := range in.History {
		fmt.Fprintf(&b, "%s: %s\n", h.AuthorName, h.Content)
	}

	b.WriteString("\nRelevant memories from past conversations:\n")
	if len(in.Memories) == 0 {
		b.WriteString(noMemoriesMarker + "\n")
	}
	for _, m := range in.Memories {
		fmt.Fprintf(&b, "- %s\n", m.Record.Snippet())
	}

	a := in.Analysis
	b.WriteString("\nLocal analysis of the latest message:\n")
	fmt.Fprintf(&b, "- Sentiment: %s (%.2f)\n", a.Sentiment, a.SentimentScore)
	fmt.Fprintf(&b, "- Toxicity: %.2f\n", a.Toxicity)
	fmt.Fprintf(&b, "- Emotion: %s\n", a.Emotion)
	fmt.Fprintf(&b, "- User's Intent: %s\n", a.Intent)

	b.WriteString("\nYour task is to analyze the latest message in the context of the conversation and respond.\n")
	b.WriteString("You MUST ONLY output a single, valid JSON object that conforms to the following schema. ")
	b.WriteString("Do not output any other text, explanation, or markdown.\n\n")
	b.WriteString("JSON Schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n\nHere are some examples of how you should respond:\n")
	for i, ex := range fewShots {
		if i > 0 {
			b.WriteString("\n")
		}
		out, _ := json.Marshal(ex.Output)
		fmt.Fprintf(&b, "Context: %s\nOutput: %s\n", ex.Context, out)
	}

	b.WriteString("\nNow, based on the latest message and all the context provided, generate your response.\n")
	fmt.Fprintf(&b, "Latest message: %s: %s\n", in.Message.Author.Name, in.Message.Content)
	b.WriteString("\nYour JSON response:\n")

	return b.String()
}

func slangFor(country string) []string {
	if s, ok := slangByCountry[country]; ok {
		return s
	}
	return slangByCountry["US"]
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
