package constants

import "time"

// Pipeline constants
const (
	// DefaultMemoryTopK is how many memories are retrieved per message
	DefaultMemoryTopK = 5

	// DefaultResponseCacheSize bounds the dedupe cache
	DefaultResponseCacheSize = 100

	// DefaultCommandPrefixes marks messages handled by command handlers instead of the model
	DefaultCommandPrefixes = "!/"

	// DefaultHistoryWindow is how many recent channel messages go into the prompt
	DefaultHistoryWindow = 5
)

// Session tracking
const (
	// SessionTimeout drops a participant from a channel after this much inactivity
	SessionTimeout = 15 * time.Minute
)

// Task types
const (
	TaskSendMessage   = "send_message"
	TaskBan           = "ban"
	TaskKick          = "kick"
	TaskDeleteMessage = "delete_message"
	TaskAddReaction   = "add_reaction"
)

// Memory op kinds
const (
	MemoryOpUpsert = "upsert"
	MemoryOpDelete = "delete"
	MemoryOpTag    = "tag"
)

// Sentiment values
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Discord constants
const (
	// DiscordMaxMessageLength is the maximum character limit for Discord messages
	DiscordMaxMessageLength = 2000
)

// FallbackMessage is sent when the remote model cannot be reached
const FallbackMessage = "I'm having a little trouble thinking right now. Please try again in a moment."
