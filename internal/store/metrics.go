package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mirabot/mira/internal/types"
)

// GetMetrics returns the relationship metrics for a user, creating the
// record with defaults on first access. A missing row is never an error.
func (s *DB) GetMetrics(userID int64) (*types.Metrics, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	// First reference to a user creates their users row.
	if err := s.EnsureUser(userID, now()); err != nil {
		return nil, err
	}

	// Lazy create. Column defaults carry the documented starting values.
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO relationship_metrics (user_id) VALUES (?)`, userID); err != nil {
		return nil, fmt.Errorf("failed to create metrics for user %d: %w", userID, err)
	}

	cols := make([]string, 0, len(types.AllDimensions)*2)
	for _, d := range types.AllDimensions {
		cols = append(cols, d.String())
	}
	for _, d := range types.AllDimensions {
		cols = append(cols, d.String()+"_locked")
	}

	row := s.db.QueryRow(fmt.Sprintf(
		`SELECT %s FROM relationship_metrics WHERE user_id = ?`,
		strings.Join(cols, ", ")), userID)

	vals := make([]int, len(types.AllDimensions))
	locks := make([]bool, len(types.AllDimensions))
	dest := make([]any, 0, len(cols))
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	for i := range locks {
		dest = append(dest, &locks[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to read metrics for user %d: %w", userID, err)
	}

	m := &types.Metrics{
		UserID: userID,
		Values: make(map[types.Dimension]int, len(types.AllDimensions)),
		Locked: make(map[types.Dimension]bool, len(types.AllDimensions)),
	}
	for i, d := range types.AllDimensions {
		m.Values[d] = vals[i]
		m.Locked[d] = locks[i]
	}
	return m, nil
}

// UpdateMetrics writes absolute values for the given dimensions, clamping
// each into its bounds first. With respectLocks=true, locked dimensions
// are silently skipped and returned so the caller knows what was not
// applied. With respectLocks=false (administrative path) locks are
// overridden.
func (s *DB) UpdateMetrics(userID int64, values map[types.Dimension]int, respectLocks bool) (skipped []types.Dimension, err error) {
	if len(values) == 0 {
		return nil, nil
	}

	current, err := s.GetMetrics(userID)
	if err != nil {
		return nil, err
	}

	// Stable order keeps the generated SQL deterministic.
	dims := make([]types.Dimension, 0, len(values))
	for d := range values {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })

	var sets []string
	var args []any
	for _, d := range dims {
		if respectLocks && current.Locked[d] {
			skipped = append(skipped, d)
			continue
		}
		sets = append(sets, d.String()+" = ?")
		args = append(args, d.Clamp(values[d]))
	}
	if len(sets) == 0 {
		return skipped, nil
	}

	args = append(args, userID)
	_, err = s.db.Exec(fmt.Sprintf(
		`UPDATE relationship_metrics SET %s WHERE user_id = ?`,
		strings.Join(sets, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update metrics for user %d: %w", userID, err)
	}
	return skipped, nil
}

// SetMetricLock sets or clears the lock flag on one dimension. The
// dimension's value is untouched.
func (s *DB) SetMetricLock(userID int64, dim types.Dimension, locked bool) error {
	if _, err := s.GetMetrics(userID); err != nil { // ensure row exists
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf(
		`UPDATE relationship_metrics SET %s_locked = ? WHERE user_id = ?`,
		dim.String()), locked, userID)
	if err != nil {
		return fmt.Errorf("failed to set lock %s for user %d: %w", dim, userID, err)
	}
	return nil
}

// MetricsExist reports whether a metrics row exists without creating one.
func (s *DB) MetricsExist(userID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM relationship_metrics WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
