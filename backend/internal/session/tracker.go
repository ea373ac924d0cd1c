package session

import (
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"discord-agent/backend/internal/constants"
	"discord-agent/backend/internal/state"
)

// HistoryEntry is one remembered channel message
type HistoryEntry struct {
	AuthorName string
	Content    string
}

// Snapshot is the conversational context of a channel at the moment a message arrived
type Snapshot struct {
	Participants []string       // display names, most recently active first
	History      []HistoryEntry // oldest first, excludes the message being tracked
}

type participant struct {
	name     string
	lastSeen time.Time
}

type channelSession struct {
	mu           sync.Mutex
	participants map[string]participant
	history      []HistoryEntry
}

// Tracker keeps per-channel participants and a short message history. Channels
// idle for longer than the timeout are dropped.
type Tracker struct {
	sessions    *gocache.Cache
	timeout     time.Duration
	historySize int
	create      sync.Mutex
	now         func() time.Time
}

// NewTracker creates a tracker. Non-positive arguments fall back to the defaults.
func NewTracker(timeout time.Duration, historySize int) *Tracker {
	if timeout <= 0 {
		timeout = constants.SessionTimeout
	}
	if historySize <= 0 {
		historySize = constants.DefaultHistoryWindow
	}
	return &Tracker{
		sessions:    gocache.New(timeout, timeout/2),
		timeout:     timeout,
		historySize: historySize,
		now:         time.Now,
	}
}

// Track records msg in its channel and returns the context that preceded it
func (t *Tracker) Track(msg state.IncomingMessage) Snapshot {
	s := t.session(msg.Channel.ID)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.participants[msg.Author.ID] = participant{name: msg.Author.Name, lastSeen: now}

	active := make([]participant, 0, len(s.participants))
	for id, p := range s.participants {
		if now.Sub(p.lastSeen) > t.timeout {
			delete(s.participants, id)
			continue
		}
		active = append(active, p)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].lastSeen.Equal(active[j].lastSeen) {
			return active[i].name < active[j].name
		}
		return active[i].lastSeen.After(active[j].lastSeen)
	})

	snap := Snapshot{
		Participants: make([]string, 0, len(active)),
		History:      append([]HistoryEntry(nil), s.history...),
	}
	for _, p := range active {
		snap.Participants = append(snap.Participants, p.name)
	}

	s.history = append(s.history, HistoryEntry{AuthorName: msg.Author.Name, Content: msg.Content})
	if len(s.history) > t.historySize {
		s.history = s.history[len(s.history)-t.historySize:]
	}

	// Refresh the channel's expiry
	t.sessions.Set(msg.Channel.ID, s, gocache.DefaultExpiration)

	return snap
}

// ActiveChannels returns the number of channels with a live session
func (t *Tracker) ActiveChannels() int {
	return t.sessions.ItemCount()
}

func (t *Tracker) session(channelID string) *channelSession {
	if v, ok := t.sessions.Get(channelID); ok {
		return v.(*channelSession)
	}

	t.create.Lock()
	defer t.create.Unlock()
	if v, ok := t.sessions.Get(channelID); ok {
		return v.(*channelSession)
	}
	s := &channelSession{participants: make(map[string]participant)}
	t.sessions.Set(channelID, s, gocache.DefaultExpiration)
	return s
}
