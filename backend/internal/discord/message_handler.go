package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	"discord-agent/backend/pkg/logger"
)

// MessageProcessor consumes inbound chat events. Process must not block on
// side effects for longer than the pipeline's own timeouts.
type MessageProcessor interface {
	Process(ctx context.Context, msg state.IncomingMessage)
}

// Handler maps gateway events onto the agent pipeline
type Handler struct {
	processor MessageProcessor
	logger    *zap.Logger
}

// NewHandler creates a new Discord message handler
func NewHandler(processor MessageProcessor) *Handler {
	return &Handler{
		processor: processor,
		logger:    logger.Named("discord"),
	}
}

// HandleMessage processes a Discord message
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	guildName, channelName := resolveNames(s, m.GuildID, m.ChannelID)

	msg, ok := toIncoming(m, guildName, channelName)
	if !ok {
		return
	}

	h.logger.Debug("Processing Discord message",
		zap.String("guild_id", msg.Guild.ID),
		zap.String("channel_id", msg.Channel.ID),
		zap.String("user_id", msg.Author.ID),
	)

	h.processor.Process(context.Background(), msg)
}

// toIncoming converts a gateway event. Bot authors and direct messages are dropped
// because every message must belong to a guild.
func toIncoming(m *discordgo.MessageCreate, guildName, channelName string) (state.IncomingMessage, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return state.IncomingMessage{}, false
	}
	if m.Author.Bot {
		return state.IncomingMessage{}, false
	}
	if m.GuildID == "" {
		return state.IncomingMessage{}, false
	}
	if strings.TrimSpace(m.Content) == "" {
		return state.IncomingMessage{}, false
	}

	return state.IncomingMessage{
		ID:      m.ID,
		Content: m.Content,
		Author:  state.Author{ID: m.Author.ID, Name: m.Author.Username},
		Channel: state.Channel{ID: m.ChannelID, Name: channelName},
		Guild:   state.Guild{ID: m.GuildID, Name: guildName},
	}, true
}

// resolveNames reads guild and channel names from the session's state cache,
// falling back to the ids
func resolveNames(s *discordgo.Session, guildID, channelID string) (string, string) {
	guildName, channelName := guildID, channelID
	if s == nil || s.State == nil {
		return guildName, channelName
	}
	if g, err := s.State.Guild(guildID); err == nil && g.Name != "" {
		guildName = g.Name
	}
	if c, err := s.State.Channel(channelID); err == nil && c.Name != "" {
		channelName = c.Name
	}
	return guildName, channelName
}
