// Package consolidate runs the memory and relationship consolidation
// pipeline: drain the short-term message log, extract facts and
// sentiment per user, reconcile facts against existing ones, apply
// metric updates, then archive and clear the log.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mirabot/mira/internal/extract"
	"github.com/mirabot/mira/internal/reconcile"
	"github.com/mirabot/mira/internal/sentiment"
	"github.com/mirabot/mira/internal/store"
	"github.com/mirabot/mira/internal/types"
)

// Consolidator orchestrates one consolidation run over a single guild's
// store. Users are processed sequentially; one user's failure is counted
// and the run moves on.
type Consolidator struct {
	store      *store.DB
	extractor  *extract.Extractor
	analyzer   *sentiment.Analyzer
	reconciler *reconcile.Reconciler

	// BotUserID excludes the bot's own messages from per-user processing.
	BotUserID int64
}

// New creates a Consolidator. The sentiment message gate lives on the
// analyzer, not here.
func New(s *store.DB, e *extract.Extractor, a *sentiment.Analyzer, r *reconcile.Reconciler, botUserID int64) *Consolidator {
	return &Consolidator{
		store:      s,
		extractor:  e,
		analyzer:   a,
		reconciler: r,
		BotUserID:  botUserID,
	}
}

// Run executes one full consolidation pass. An empty log yields a
// zero-work result with no archive file. Facts and metrics written
// before a failure stay written; there is no rollback, and re-running
// over the same log is safe because duplicate detection absorbs
// re-proposed facts.
func (c *Consolidator) Run(ctx context.Context) (*types.ConsolidationResult, error) {
	result := &types.ConsolidationResult{}

	entries, err := c.store.AllMessages()
	if err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}
	if len(entries) == 0 {
		log.Println("[consolidate] message log empty, nothing to do")
		return result, nil
	}

	grouped := store.GroupByAuthor(entries, c.BotUserID)
	log.Printf("[consolidate] %d log entries across %d users", len(entries), len(grouped))

	for userID, messages := range grouped {
		if err := ctx.Err(); err != nil {
			// Abandoned run: applied work persists, log stays intact.
			return result, err
		}
		if err := c.processUser(ctx, userID, messages, result); err != nil {
			log.Printf("[consolidate] user %d failed: %v", userID, err)
			result.Errors++
			continue
		}
		result.UsersProcessed++
	}

	// Archive exactly once per run, even when no facts came out of it.
	archived, deleted, file, err := c.store.ArchiveAndClear()
	if err != nil {
		// Log stays intact for the next run.
		return result, fmt.Errorf("failed to archive message log: %w", err)
	}
	result.Archived = archived
	result.Deleted = deleted
	result.ArchiveFile = file

	log.Printf("[consolidate] done: %d users, %d facts added, %d errors, %d archived",
		result.UsersProcessed, result.FactsAdded, result.Errors, result.Archived)
	return result, nil
}

// processUser runs extraction, reconciliation, and sentiment for one
// user. Fact processing and sentiment are independent; extraction runs
// first, matching the original pipeline order.
func (c *Consolidator) processUser(ctx context.Context, userID int64, messages []string, result *types.ConsolidationResult) error {
	facts, err := c.extractor.Extract(ctx, userID, messages)
	if err != nil {
		return err
	}

	for _, candidate := range facts {
		added, err := c.applyCandidate(ctx, userID, candidate)
		if err != nil {
			log.Printf("[consolidate] user %d: fact %q not applied: %v", userID, candidate, err)
			result.Errors++
			continue
		}
		if added {
			result.FactsAdded++
		}
	}

	// The analyzer gates on batch size itself and returns no update for
	// batches below its threshold.
	if err := c.applySentiment(ctx, userID, messages); err != nil {
		return err
	}
	return nil
}

// applyCandidate reconciles one candidate fact against a fresh snapshot
// of the user's active facts and applies the decision. The snapshot is
// re-read per candidate so a fact applied earlier in the same run is
// visible to later comparisons.
func (c *Consolidator) applyCandidate(ctx context.Context, userID int64, candidate string) (added bool, err error) {
	existing, err := c.store.ListActiveFacts(userID)
	if err != nil {
		return false, err
	}

	if len(existing) == 0 {
		return c.insertCandidate(userID, candidate)
	}

	texts := make([]string, len(existing))
	for i, f := range existing {
		texts[i] = f.Text
	}

	decision, err := c.reconciler.Classify(ctx, candidate, texts)
	if err != nil {
		// Fail open: a broken reconciliation call must not drop the fact.
		log.Printf("[consolidate] user %d: reconciliation failed, inserting as new: %v", userID, err)
		return c.insertCandidate(userID, candidate)
	}

	switch decision.Outcome {
	case reconcile.Duplicate:
		// Skip. The existing fact is left untouched: no reference-count
		// bump, matching the original pipeline (see DESIGN.md).
		log.Printf("[consolidate] user %d: %q duplicates fact %d, skipped", userID, candidate, decision.Index)
		return false, nil
	case reconcile.Contradiction:
		old := existing[decision.Index-1]
		if err := c.store.OverwriteFact(old.ID, candidate); err != nil {
			return false, err
		}
		log.Printf("[consolidate] user %d: %q contradicts fact %d, overwrote", userID, candidate, old.ID)
		return true, nil
	default: // New or Unknown
		return c.insertCandidate(userID, candidate)
	}
}

func (c *Consolidator) insertCandidate(userID int64, candidate string) (bool, error) {
	_, err := c.store.InsertFact(userID, candidate, c.BotUserID, "")
	if errors.Is(err, store.ErrDuplicateFact) {
		// Byte-identical active fact already present; nothing to do.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// applySentiment runs the analyzer and writes the result with locks
// respected. Locked dimensions the model wanted to move are skipped
// silently.
func (c *Consolidator) applySentiment(ctx context.Context, userID int64, messages []string) error {
	current, err := c.store.GetMetrics(userID)
	if err != nil {
		return err
	}

	values, err := c.analyzer.Analyze(ctx, userID, messages, current)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	skipped, err := c.store.UpdateMetrics(userID, values, true)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		log.Printf("[consolidate] user %d: %d locked dimensions skipped", userID, len(skipped))
	}
	return nil
}
