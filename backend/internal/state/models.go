package state

import (
	"fmt"
	"strings"
	"time"
)

// IncomingMessage is one chat event handed to the agent. It is never mutated after creation.
type IncomingMessage struct {
	ID      string
	Content string
	Author  Author
	Channel Channel
	Guild   Guild
}

// Author identifies who sent a message
type Author struct {
	ID   string
	Name string
}

// Channel identifies where a message was sent
type Channel struct {
	ID   string
	Name string
}

// Guild identifies the tenancy boundary a message belongs to
type Guild struct {
	ID   string
	Name string
}

// LocalAnalysis is the lightweight signal computed by the local analysis service.
// It is produced per message and never persisted.
type LocalAnalysis struct {
	Sentiment      string  `json:"sentiment"`
	SentimentScore float64 `json:"sentiment_score"`
	Toxicity       float64 `json:"toxicity"`
	Emotion        string  `json:"emotion"`
	Intent         string  `json:"intent"`
}

// NeutralAnalysis is substituted when the analysis service is unavailable
func NeutralAnalysis() LocalAnalysis {
	return LocalAnalysis{
		Sentiment:      "neutral",
		SentimentScore: 0,
		Toxicity:       0,
		Emotion:        "unknown",
		Intent:         "unknown",
	}
}

// Persona is the identity the agent adopts in a guild
type Persona struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Country   string  `json:"country"`
	Backstory string  `json:"backstory"`
	// SarcasticSweet > 0 leans sweet, otherwise sarcastic
	SarcasticSweet float64 `json:"sarcastic_sweet"`
	// ChaoticCalm > 0 leans calm, otherwise chaotic
	ChaoticCalm   float64 `json:"chaotic_calm"`
	MemeFrequency float64 `json:"meme_frequency"`
}

// ServerConfig is a guild's configuration row
type ServerConfig struct {
	GuildID         string `json:"guild_id"`
	OwnerID         string `json:"owner_id"`
	PersonaID       string `json:"persona_id"`
	AllowedCommands string `json:"allowed_commands"` // comma-delimited task types
}

// AllowedCommandList splits the comma-delimited allow-list. Entries are trimmed
// but otherwise compared exactly and case-sensitively.
func (c ServerConfig) AllowedCommandList() []string {
	if strings.TrimSpace(c.AllowedCommands) == "" {
		return []string{}
	}
	parts := strings.Split(c.AllowedCommands, ",")
	allowed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			allowed = append(allowed, p)
		}
	}
	return allowed
}

// Allows reports whether a task type is on the guild's allow-list
func (c ServerConfig) Allows(taskType string) bool {
	for _, allowed := range c.AllowedCommandList() {
		if allowed == taskType {
			return true
		}
	}
	return false
}

// GuildProfile is what the persona store returns for a guild
type GuildProfile struct {
	Persona Persona
	Config  ServerConfig
}

// MemoryRecord is a durable summary of a past interaction. The vector index keeps
// {ID, Embedding, GuildID, ChannelID}; the metadata store keeps the full record.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float64 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields required before a record is written
func (r *MemoryRecord) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrInvalidMemoryRecord{Field: "text", Reason: "cannot be empty"}
	}
	if r.GuildID == "" {
		return ErrInvalidMemoryRecord{Field: "guild_id", Reason: "cannot be empty"}
	}
	if r.ChannelID == "" {
		return ErrInvalidMemoryRecord{Field: "channel_id", Reason: "cannot be empty"}
	}
	return nil
}

// Snippet is the text a memory contributes to a prompt
func (r *MemoryRecord) Snippet() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Text
}

// ScoredMemory is a retrieval hit
type ScoredMemory struct {
	Record MemoryRecord
	Score  float64
}

// VectorPoint is what the vector index stores for a memory
type VectorPoint struct {
	ID        string
	Vector    []float64
	GuildID   string
	ChannelID string
}

// VectorHit is a similarity search result from the vector index
type VectorHit struct {
	ID    string
	Score float64
}

// AgentResponse is the trusted output of one model invocation. Values of this type
// are only produced by the response validator.
type AgentResponse struct {
	ShouldRespond bool          `json:"should_respond"`
	Response      *ReplyContent `json:"response,omitempty"`
	Analysis      Analysis      `json:"analysis"`
	Tasks         []Task        `json:"tasks,omitempty"`
	MemoryOps     []MemoryOp    `json:"memory_ops,omitempty"`
	Confidence    *float64      `json:"confidence,omitempty"`
}

// ReplyContent is the text the agent wants to post
type ReplyContent struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// Analysis is the model's own reading of the message
type Analysis struct {
	Sentiment      string   `json:"sentiment"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
	ToxicityScore  *float64 `json:"toxicity_score,omitempty"`
	Emotion        string   `json:"emotion,omitempty"`
	Intent         string   `json:"intent,omitempty"`
}

// Task is an action directive forwarded to the execution service
type Task struct {
	Type   string                 `json:"type"`
	Target string                 `json:"target,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// MemoryOp is a directive mutating long-term memory
type MemoryOp struct {
	Op     string                 `json:"op"`
	Key    string                 `json:"key"`
	Vector []float64              `json:"vector,omitempty"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// MetaString returns a string value from the op's meta map
func (m MemoryOp) MetaString(key string) string {
	if m.Meta == nil {
		return ""
	}
	if s, ok := m.Meta[key].(string); ok {
		return s
	}
	return ""
}

// MetaStrings returns a string list from the op's meta map
func (m MemoryOp) MetaStrings(key string) []string {
	if m.Meta == nil {
		return nil
	}
	switch v := m.Meta[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// TaskResult is the execution service's verdict on one task
type TaskResult struct {
	Task    Task   `json:"task"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExecuteRequest is the body of POST /execute
type ExecuteRequest struct {
	GuildID string `json:"guildId" binding:"required"`
	Tasks   []Task `json:"tasks" binding:"required"`
}

// ExecuteResponse is the body returned by POST /execute; one result per task, in order
type ExecuteResponse struct {
	Results []TaskResult `json:"results"`
}

// AuditEntry is an audit log row written by the execution service
type AuditEntry struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id" binding:"required"`
	Action    string    `json:"action" binding:"required"`
	ActorID   string    `json:"actor_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Errors

type ErrInvalidMemoryRecord struct {
	Field  string
	Reason string
}

func (e ErrInvalidMemoryRecord) Error() string {
	return fmt.Sprintf("invalid memory record: %s - %s", e.Field, e.Reason)
}
