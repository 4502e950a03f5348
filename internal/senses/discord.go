// Package senses connects the bot to Discord and feeds observed channel
// messages into each guild's short-term message log.
package senses

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mirabot/mira/internal/store"
	"github.com/mirabot/mira/internal/types"
)

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	Token     string
	ChannelID string // optional: restrict logging to one channel
}

// DiscordSense listens to Discord and records messages.
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	botID     string
	tenants   *store.Tenants
	seen      *seenRing
}

// NewDiscordSense creates a Discord listener writing into per-guild
// stores.
func NewDiscordSense(cfg DiscordConfig, tenants *store.Tenants) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
		tenants:   tenants,
		seen:      newSeenRing(1024),
	}

	session.AddHandler(sense.handleMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return sense, nil
}

// Start connects to Discord and begins listening.
func (d *DiscordSense) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.botID = d.session.State.User.ID
	log.Printf("[discord] Connected as %s", d.session.State.User.Username)
	return nil
}

// Stop disconnects from Discord.
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// BotUserID returns the bot's own user ID (valid after Start).
func (d *DiscordSense) BotUserID() int64 {
	id, _ := strconv.ParseInt(d.botID, 10, 64)
	return id
}

// handleMessage records one observed channel message.
func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Never log our own messages.
	if m.Author.ID == d.botID || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return // DMs are not logged
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}
	// Gateway reconnects can redeliver a message; process each ID once.
	if !d.seen.Add(m.ID) {
		return
	}

	guildName := m.GuildID
	if g, err := s.State.Guild(m.GuildID); err == nil {
		guildName = g.Name
	}

	db, err := d.tenants.Get(m.GuildID, guildName)
	if err != nil {
		log.Printf("[discord] failed to open store for guild %s: %v", m.GuildID, err)
		return
	}

	entry, err := d.messageToEntry(m)
	if err != nil {
		log.Printf("[discord] skipping message %s: %v", m.ID, err)
		return
	}

	if err := db.LogMessage(entry); err != nil {
		log.Printf("[discord] failed to log message %s: %v", m.ID, err)
	}
}

// messageToEntry converts a Discord message into a log entry.
func (d *DiscordSense) messageToEntry(m *discordgo.MessageCreate) (types.MessageEntry, error) {
	messageID, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		return types.MessageEntry{}, fmt.Errorf("bad message ID %q: %w", m.ID, err)
	}
	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return types.MessageEntry{}, fmt.Errorf("bad author ID %q: %w", m.Author.ID, err)
	}
	channelID, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		return types.MessageEntry{}, fmt.Errorf("bad channel ID %q: %w", m.ChannelID, err)
	}

	ts, err := discordgo.SnowflakeTimestamp(m.ID)
	if err != nil {
		return types.MessageEntry{}, fmt.Errorf("bad snowflake timestamp: %w", err)
	}

	return types.MessageEntry{
		MessageID:     messageID,
		UserID:        userID,
		ChannelID:     channelID,
		Content:       m.Content,
		Timestamp:     ts.UTC(),
		DirectedAtBot: d.directedAtBot(m),
	}, nil
}

// directedAtBot reports whether the message addresses the bot: an
// explicit mention, a reply to the bot, or the bot's name in the text.
func (d *DiscordSense) directedAtBot(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == d.botID {
			return true
		}
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil &&
		m.ReferencedMessage.Author.ID == d.botID {
		return true
	}
	if d.session.State.User != nil {
		name := strings.ToLower(d.session.State.User.Username)
		if name != "" && strings.Contains(strings.ToLower(m.Content), name) {
			return true
		}
	}
	return false
}
