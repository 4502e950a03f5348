package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Tenants manages one database per guild. Each guild's state is fully
// isolated in its own file; instances are opened lazily and cached.
type Tenants struct {
	mu      sync.Mutex
	dir     string
	byGuild map[string]*DB
}

// NewTenants creates a tenant manager rooted at dir.
func NewTenants(dir string) *Tenants {
	return &Tenants{dir: dir, byGuild: make(map[string]*DB)}
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeGuildName makes a guild name filesystem-safe.
func sanitizeGuildName(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	s = strings.Trim(s, ". ")
	if s == "" {
		s = "guild"
	}
	return s
}

// Get returns the store for a guild, opening it on first use. The guild
// ID keeps filenames unique even when guilds share or change names.
func (t *Tenants) Get(guildID, guildName string) (*DB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if db, ok := t.byGuild[guildID]; ok {
		return db, nil
	}

	filename := fmt.Sprintf("%s_%s_data.db", guildID, sanitizeGuildName(guildName))
	db, err := Open(filepath.Join(t.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to open store for guild %s: %w", guildID, err)
	}
	t.byGuild[guildID] = db
	return db, nil
}

// Open returns the currently open tenant stores keyed by guild ID.
func (t *Tenants) Open() map[string]*DB {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*DB, len(t.byGuild))
	for id, db := range t.byGuild {
		out[id] = db
	}
	return out
}

// CloseAll closes every open tenant store.
func (t *Tenants) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, db := range t.byGuild {
		db.Close()
		delete(t.byGuild, id)
	}
}
