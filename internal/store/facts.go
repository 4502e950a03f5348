package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mirabot/mira/internal/types"
)

const factColumns = `id, user_id, fact, COALESCE(source_user_id, 0), COALESCE(source_nickname, ''),
	first_mentioned_timestamp, last_mentioned_timestamp, reference_count, status, COALESCE(superseded_by_id, 0)`

func scanFact(row interface{ Scan(...any) error }) (*types.Fact, error) {
	var f types.Fact
	err := row.Scan(&f.ID, &f.UserID, &f.Text, &f.SourceUserID, &f.SourceNickname,
		&f.FirstMentioned, &f.LastMentioned, &f.ReferenceCount, &f.Status, &f.SupersededBy)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListActiveFacts returns the user's active facts, most salient first:
// highest reference count, then most recently mentioned.
func (s *DB) ListActiveFacts(userID int64) ([]*types.Fact, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT %s FROM long_term_memory
		 WHERE user_id = ? AND status = 'active'
		 ORDER BY reference_count DESC, last_mentioned_timestamp DESC`, factColumns), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var facts []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// ListAllFacts returns every fact for a user including superseded rows,
// newest first. Administrative use.
func (s *DB) ListAllFacts(userID int64) ([]*types.Fact, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT %s FROM long_term_memory WHERE user_id = ? ORDER BY id DESC`, factColumns), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list all facts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var facts []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// GetFact returns a fact by ID regardless of status.
func (s *DB) GetFact(factID int64) (*types.Fact, error) {
	f, err := scanFact(s.db.QueryRow(fmt.Sprintf(
		`SELECT %s FROM long_term_memory WHERE id = ?`, factColumns), factID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fact %d: %w", factID, err)
	}
	return f, nil
}

// InsertFact adds a new active fact with reference_count=1 and both
// timestamps set to now. Returns ErrDuplicateFact when an identical
// active fact already exists for the user; nothing is written in that
// case.
func (s *DB) InsertFact(userID int64, text string, sourceUserID int64, sourceNickname string) (int64, error) {
	if err := ValidateFact(text); err != nil {
		return 0, err
	}
	if err := ValidateUserID(userID); err != nil {
		return 0, err
	}
	if err := s.EnsureUser(userID, now()); err != nil {
		return 0, err
	}

	var existing int64
	err := s.db.QueryRow(
		`SELECT id FROM long_term_memory WHERE user_id = ? AND fact = ? AND status = 'active'`,
		userID, text).Scan(&existing)
	if err == nil {
		return existing, ErrDuplicateFact
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check for duplicate fact: %w", err)
	}

	ts := now()
	res, err := s.db.Exec(`
		INSERT INTO long_term_memory
			(user_id, fact, source_user_id, source_nickname,
			 first_mentioned_timestamp, last_mentioned_timestamp, reference_count, status)
		VALUES (?, ?, ?, ?, ?, ?, 1, 'active')`,
		userID, text, sourceUserID, sourceNickname, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// OverwriteFact replaces a fact's text in place, incrementing its
// reference count and bumping last_mentioned. This is the contradiction
// resolution path: the old claim's text is replaced rather than kept as
// a superseded row.
func (s *DB) OverwriteFact(factID int64, newText string) error {
	if err := ValidateFact(newText); err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE long_term_memory
		SET fact = ?, reference_count = reference_count + 1, last_mentioned_timestamp = ?
		WHERE id = ?`,
		newText, now(), factID)
	if err != nil {
		return fmt.Errorf("failed to overwrite fact %d: %w", factID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFactNotFound
	}
	return nil
}

// SupersedeFact soft-deletes a fact, optionally recording which fact
// replaced it. The row is kept for history; it no longer participates in
// duplicate or contradiction comparisons. Not used by the default
// contradiction path, which overwrites in place.
func (s *DB) SupersedeFact(factID int64, byFactID int64) error {
	var by any
	if byFactID != 0 {
		by = byFactID
	}
	res, err := s.db.Exec(
		`UPDATE long_term_memory SET status = 'superseded', superseded_by_id = ? WHERE id = ?`,
		by, factID)
	if err != nil {
		return fmt.Errorf("failed to supersede fact %d: %w", factID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFactNotFound
	}
	return nil
}

// DeleteFact hard-deletes a fact. Administrative use only.
func (s *DB) DeleteFact(factID int64) error {
	res, err := s.db.Exec(`DELETE FROM long_term_memory WHERE id = ?`, factID)
	if err != nil {
		return fmt.Errorf("failed to delete fact %d: %w", factID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFactNotFound
	}
	return nil
}

// CandidateConflicts returns the comparison set for reconciliation: every
// active fact for the user. The store does no similarity judgment of its
// own.
func (s *DB) CandidateConflicts(userID int64, candidateText string) ([]*types.Fact, error) {
	return s.ListActiveFacts(userID)
}
