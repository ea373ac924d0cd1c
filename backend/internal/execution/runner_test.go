package execution

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/state"
)

type fakeSession struct {
	channels  map[string]string // channel id -> guild id
	sent      []string
	bans      []string
	kicks     []string
	deleted   []string
	reactions []string
}

func (f *fakeSession) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.bans = append(f.bans, guildID+":"+userID+":"+reason)
	return nil
}

func (f *fakeSession) GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error {
	f.kicks = append(f.kicks, guildID+":"+userID)
	return nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.deleted = append(f.deleted, channelID+":"+messageID)
	return nil
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error {
	f.reactions = append(f.reactions, channelID+":"+messageID+":"+emojiID)
	return nil
}

func newFakeSession() *fakeSession {
	return &fakeSession{channels: map[string]string{"c1": "g1", "c2": "g2"}}
}

func (f *fakeSession) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	guildID, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("HTTP 404 Not Found")
	}
	return &discordgo.Channel{ID: channelID, GuildID: guildID}, nil
}

func TestRunner_Tasks(t *testing.T) {
	session := newFakeSession()
	runner := NewRunner(session)

	require.NoError(t, runner.Run("g1", state.Task{Type: "send_message", Target: "c1", Params: map[string]interface{}{"text": "hello"}}))
	require.NoError(t, runner.Run("g1", state.Task{Type: "ban", Target: "u2", Params: map[string]interface{}{"reason": "spam"}}))
	require.NoError(t, runner.Run("g1", state.Task{Type: "kick", Target: "u3"}))
	require.NoError(t, runner.Run("g1", state.Task{Type: "delete_message", Target: "m1", Params: map[string]interface{}{"channel_id": "c1"}}))
	require.NoError(t, runner.Run("g1", state.Task{Type: "add_reaction", Target: "m1", Params: map[string]interface{}{"channel_id": "c1", "emoji": "👍"}}))

	assert.Equal(t, []string{"c1:hello"}, session.sent)
	assert.Equal(t, []string{"g1:u2:spam"}, session.bans)
	assert.Equal(t, []string{"g1:u3"}, session.kicks)
	assert.Equal(t, []string{"c1:m1"}, session.deleted)
	assert.Equal(t, []string{"c1:m1:👍"}, session.reactions)
}

func TestRunner_UnknownAndInvalid(t *testing.T) {
	runner := NewRunner(newFakeSession())

	err := runner.Run("g1", state.Task{Type: "mute", Target: "u1"})
	assert.ErrorIs(t, err, ErrUnknownTaskType)
	assert.Equal(t, "Unknown task type", err.Error())

	assert.Error(t, runner.Run("g1", state.Task{Type: "send_message", Target: "c1"}))
	assert.Error(t, runner.Run("g1", state.Task{Type: "delete_message", Target: "m1"}))
	assert.Error(t, runner.Run("g1", state.Task{Type: "ban"}))
}

func TestRunner_RejectsChannelsOfOtherGuilds(t *testing.T) {
	session := newFakeSession()
	runner := NewRunner(session)

	tasks := []state.Task{
		{Type: "send_message", Target: "c2", Params: map[string]interface{}{"text": "hello"}},
		{Type: "delete_message", Target: "m1", Params: map[string]interface{}{"channel_id": "c2"}},
		{Type: "add_reaction", Target: "m1", Params: map[string]interface{}{"channel_id": "c2", "emoji": "👍"}},
	}
	for _, task := range tasks {
		err := runner.Run("g1", task)
		assert.ErrorIs(t, err, ErrForeignChannel, task.Type)
	}

	err := runner.Run("g1", state.Task{Type: "send_message", Target: "missing", Params: map[string]interface{}{"text": "hello"}})
	require.Error(t, err)
	assert.Equal(t, "Channel not found or is not a sendable channel.", err.Error())

	assert.Empty(t, session.sent)
	assert.Empty(t, session.deleted)
	assert.Empty(t, session.reactions)
}

func TestRunner_LongMessagesAreChunked(t *testing.T) {
	session := newFakeSession()
	runner := NewRunner(session)

	text := strings.Repeat("word ", 1000)
	require.NoError(t, runner.Run("g1", state.Task{Type: "send_message", Target: "c1", Params: map[string]interface{}{"text": text}}))

	require.Len(t, session.sent, 3)
	for _, s := range session.sent {
		assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(s, "c1:"))), 2000)
	}
}

func TestChunkMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunkMessage("short", 10))
	assert.Equal(t, []string{"aaaa", "bbbb"}, chunkMessage("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"abcdef", "ghij"}, chunkMessage("abcdefghij", 6))
}
