package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mirabot/mira/internal/types"
)

// LogMessage appends one entry to the short-term message log. Duplicate
// message IDs are ignored (the log is append-only per platform message).
// Content beyond the storage limit is truncated.
func (s *DB) LogMessage(e types.MessageEntry) error {
	if err := ValidateUserID(e.UserID); err != nil {
		return err
	}
	if err := s.EnsureUser(e.UserID, e.Timestamp); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO short_term_message_log
			(message_id, user_id, channel_id, content, timestamp, directed_at_bot)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.MessageID, e.UserID, e.ChannelID, truncateContent(e.Content), e.Timestamp, e.DirectedAtBot)
	if err != nil {
		return fmt.Errorf("failed to log message %d: %w", e.MessageID, err)
	}
	return nil
}

// AllMessages returns a snapshot of the short-term log ordered by
// timestamp ascending.
func (s *DB) AllMessages() ([]types.MessageEntry, error) {
	rows, err := s.db.Query(`
		SELECT message_id, user_id, channel_id, COALESCE(content, ''), timestamp, directed_at_bot
		FROM short_term_message_log ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}
	defer rows.Close()

	var entries []types.MessageEntry
	for rows.Next() {
		var e types.MessageEntry
		if err := rows.Scan(&e.MessageID, &e.UserID, &e.ChannelID, &e.Content, &e.Timestamp, &e.DirectedAtBot); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GroupByAuthor builds per-user transcripts from a log snapshot,
// preserving timestamp order and excluding the given author (the bot's
// own messages never feed extraction or sentiment).
func GroupByAuthor(entries []types.MessageEntry, excludeUserID int64) map[int64][]string {
	grouped := make(map[int64][]string)
	for _, e := range entries {
		if e.UserID == excludeUserID {
			continue
		}
		grouped[e.UserID] = append(grouped[e.UserID], e.Content)
	}
	return grouped
}

// archiveFile is the on-disk shape of one archive.
type archiveFile struct {
	ArchivedAt   time.Time            `json:"archived_at"`
	MessageCount int                  `json:"message_count"`
	Messages     []types.MessageEntry `json:"messages"`
}

// ArchiveAndClear drains the short-term log: every entry is written to a
// timestamped archive file and copied to the message_archive table, then
// deleted from the live log, as one logical operation. Returns
// (0, 0, "") without creating a file when the log is empty.
//
// The file is written under a temporary name and only renamed into place
// after the delete commits, so the log is never cleared without a
// visible archive. Not safe to run concurrently with ingestion into the
// same log; callers run it as an exclusive maintenance step.
func (s *DB) ArchiveAndClear() (archived, deleted int, file string, err error) {
	entries, err := s.AllMessages()
	if err != nil {
		return 0, 0, "", err
	}
	if len(entries) == 0 {
		return 0, 0, "", nil
	}

	archivedAt := now()
	name := fmt.Sprintf("short_term_archive_%s.json", archivedAt.Format("20060102T150405Z"))
	finalPath := filepath.Join(s.archiveDir, name)
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(archiveFile{
		ArchivedAt:   archivedAt,
		MessageCount: len(entries),
		Messages:     entries,
	}, "", "  ")
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to encode archive: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return 0, 0, "", fmt.Errorf("failed to write archive file: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		os.Remove(tmpPath)
		return 0, 0, "", fmt.Errorf("failed to begin archive transaction: %w", err)
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO message_archive
				(message_id, user_id, channel_id, content, timestamp, archived_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.MessageID, e.UserID, e.ChannelID, e.Content, e.Timestamp, archivedAt); err != nil {
			tx.Rollback()
			os.Remove(tmpPath)
			return 0, 0, "", fmt.Errorf("failed to copy message %d to archive table: %w", e.MessageID, err)
		}
	}

	// Delete exactly the snapshotted entries. Messages ingested after the
	// snapshot (the caller is supposed to prevent this) survive the clear.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		res, err := tx.Exec(`DELETE FROM short_term_message_log WHERE message_id = ?`, id)
		if err != nil {
			tx.Rollback()
			os.Remove(tmpPath)
			return 0, 0, "", fmt.Errorf("failed to clear message %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, "", fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		// Rows are already cleared and copied to message_archive; the flat
		// file is a convenience copy, so log and carry on.
		log.Printf("[store] archive rename failed (rows archived in table): %v", err)
		finalPath = tmpPath
	}

	log.Printf("[store] archived %d messages to %s", len(entries), filepath.Base(finalPath))
	return len(entries), deleted, filepath.Base(finalPath), nil
}
