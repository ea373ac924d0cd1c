package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-agent/backend/internal/constants"
	"discord-agent/backend/internal/state"
	"discord-agent/backend/pkg/logger"
)

var (
	// ErrUnknownTaskType is reported for allowed task types with no runner
	ErrUnknownTaskType = errors.New("Unknown task type")
	// ErrForeignChannel is reported when a task names a channel outside the requesting guild
	ErrForeignChannel = errors.New("Channel does not belong to this server.")
)

// DiscordSession is the subset of *discordgo.Session the runners use
type DiscordSession interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Runner performs allowed tasks against the chat platform
type Runner struct {
	session DiscordSession
	logger  *zap.Logger
}

// NewRunner creates a task runner bound to a Discord session
func NewRunner(session DiscordSession) *Runner {
	return &Runner{
		session: session,
		logger:  logger.Named("task_runner"),
	}
}

// Run performs one task for a guild. Tasks that address a channel only run when
// that channel belongs to guildID.
func (r *Runner) Run(guildID string, task state.Task) error {
	switch task.Type {
	case constants.TaskSendMessage:
		return r.sendMessage(guildID, task)
	case constants.TaskBan:
		if task.Target == "" {
			return errors.New("ban requires a target user")
		}
		days := paramInt(task.Params, "delete_message_days")
		if days < 0 || days > 7 {
			days = 0
		}
		return r.session.GuildBanCreateWithReason(guildID, task.Target, paramString(task.Params, "reason"), days)
	case constants.TaskKick:
		if task.Target == "" {
			return errors.New("kick requires a target user")
		}
		return r.session.GuildMemberDeleteWithReason(guildID, task.Target, paramString(task.Params, "reason"))
	case constants.TaskDeleteMessage:
		channelID := paramString(task.Params, "channel_id")
		if channelID == "" || task.Target == "" {
			return errors.New("delete_message requires params.channel_id and a target message")
		}
		if err := r.checkChannel(guildID, channelID); err != nil {
			return err
		}
		return r.session.ChannelMessageDelete(channelID, task.Target)
	case constants.TaskAddReaction:
		channelID := paramString(task.Params, "channel_id")
		emoji := paramString(task.Params, "emoji")
		if channelID == "" || task.Target == "" || emoji == "" {
			return errors.New("add_reaction requires params.channel_id, params.emoji and a target message")
		}
		if err := r.checkChannel(guildID, channelID); err != nil {
			return err
		}
		return r.session.MessageReactionAdd(channelID, task.Target, emoji)
	}
	return ErrUnknownTaskType
}

func (r *Runner) sendMessage(guildID string, task state.Task) error {
	text := paramString(task.Params, "text")
	if task.Target == "" {
		return errors.New("Channel not found or is not a sendable channel.")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("send_message requires params.text")
	}
	if err := r.checkChannel(guildID, task.Target); err != nil {
		return err
	}

	chunks := chunkMessage(text, constants.DiscordMaxMessageLength)
	for i, chunk := range chunks {
		if _, err := r.session.ChannelMessageSend(task.Target, chunk); err != nil {
			r.logger.Error("Failed to send message chunk",
				zap.String("channel_id", task.Target),
				zap.Int("chunk", i+1),
				zap.Int("total", len(chunks)),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// checkChannel resolves channelID and rejects it unless it belongs to guildID
func (r *Runner) checkChannel(guildID, channelID string) error {
	ch, err := r.session.Channel(channelID)
	if err != nil {
		r.logger.Warn("Failed to resolve task channel",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return errors.New("Channel not found or is not a sendable channel.")
	}
	if ch == nil || ch.GuildID != guildID {
		r.logger.Warn("Rejected task for channel outside the guild",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
		)
		return ErrForeignChannel
	}
	return nil
}

// chunkMessage splits content into pieces of at most maxLength runes, preferring
// newline and then space boundaries
func chunkMessage(content string, maxLength int) []string {
	runes := []rune(content)
	if len(runes) <= maxLength {
		return []string{content}
	}

	var chunks []string
	for len(runes) > maxLength {
		cut := lastIndexRune(runes[:maxLength], '\n')
		if cut < maxLength/2 {
			cut = lastIndexRune(runes[:maxLength], ' ')
		}
		if cut < maxLength/2 {
			cut = maxLength
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ') {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func paramString(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func paramInt(params map[string]interface{}, key string) int {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
