package types

import "time"

// FactStatus is the lifecycle state of a long-term fact.
type FactStatus string

const (
	FactActive     FactStatus = "active"
	FactSuperseded FactStatus = "superseded"
)

// Fact is a short free-text statement about a user, with provenance.
type Fact struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Text           string     `json:"fact"`
	SourceUserID   int64      `json:"source_user_id,omitempty"`
	SourceNickname string     `json:"source_nickname,omitempty"`
	FirstMentioned time.Time  `json:"first_mentioned"`
	LastMentioned  time.Time  `json:"last_mentioned"`
	ReferenceCount int        `json:"reference_count"`
	Status         FactStatus `json:"status"`
	SupersededBy   int64      `json:"superseded_by_id,omitempty"` // 0 = not superseded
}

// MessageEntry is one record in the short-term message log.
type MessageEntry struct {
	MessageID     int64     `json:"message_id"`
	UserID        int64     `json:"user_id"`
	ChannelID     int64     `json:"channel_id"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	DirectedAtBot bool      `json:"directed_at_bot"`
}

// Metrics is one user's relationship state: a value and a lock flag per
// dimension. Values are kept inside each dimension's bounds by the store.
type Metrics struct {
	UserID int64
	Values map[Dimension]int
	Locked map[Dimension]bool
}

// Value returns the stored value for d, or d's default when unset.
func (m *Metrics) Value(d Dimension) int {
	if v, ok := m.Values[d]; ok {
		return v
	}
	return d.Default()
}

// ConsolidationResult summarizes one full consolidation run. It is
// reported to the caller, never persisted.
type ConsolidationResult struct {
	UsersProcessed int
	FactsAdded     int
	Errors         int
	Archived       int
	Deleted        int
	ArchiveFile    string // empty when the log was empty at the start
}
