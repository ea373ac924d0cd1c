package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"discord-agent/backend/internal/state"
)

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// FallbackNotifier posts the fallback text straight to the originating channel.
// It bypasses the execution service so it still works when that service is down.
type FallbackNotifier struct {
	session messageSender
}

// NewFallbackNotifier creates a notifier bound to a Discord session
func NewFallbackNotifier(session messageSender) *FallbackNotifier {
	return &FallbackNotifier{session: session}
}

// NotifyFallback sends text to the message's channel
func (n *FallbackNotifier) NotifyFallback(ctx context.Context, msg state.IncomingMessage, text string) error {
	_, err := n.session.ChannelMessageSend(msg.Channel.ID, text, discordgo.WithContext(ctx))
	return err
}
