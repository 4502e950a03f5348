package consolidate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mirabot/mira/internal/extract"
	"github.com/mirabot/mira/internal/reconcile"
	"github.com/mirabot/mira/internal/sentiment"
	"github.com/mirabot/mira/internal/store"
	"github.com/mirabot/mira/internal/types"
)

const testBotID = int64(999)

// scriptedClient routes completion calls to per-role responses by
// inspecting the system instruction. Each role may be a fixed string or
// a function of the prompt.
type scriptedClient struct {
	extractResp   func(prompt string) (string, error)
	sentimentResp func(prompt string) (string, error)
	reconcileResp func(prompt string) (string, error)
}

func fixed(resp string) func(string) (string, error) {
	return func(string) (string, error) { return resp, nil }
}

func (s *scriptedClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	switch {
	case strings.Contains(system, "extract long-term facts"):
		if s.extractResp == nil {
			return "NO_FACTS", nil
		}
		return s.extractResp(prompt)
	case strings.Contains(system, "holistic tone"):
		if s.sentimentResp == nil {
			return "{}", nil
		}
		return s.sentimentResp(prompt)
	case strings.Contains(system, "compare a candidate fact"):
		if s.reconcileResp == nil {
			return "NEW", nil
		}
		return s.reconcileResp(prompt)
	}
	return "", fmt.Errorf("unrecognized system instruction: %q", system)
}

func newTestConsolidator(t *testing.T, client *scriptedClient) (*Consolidator, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test_data.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetArchiveDir(t.TempDir())

	c := New(db,
		extract.New(client, false),
		sentiment.New(client, false),
		reconcile.New(client, false),
		testBotID)
	return c, db
}

func logMessages(t *testing.T, db *store.DB, userID int64, contents ...string) {
	t.Helper()
	base := time.Now().UTC()
	for i, content := range contents {
		err := db.LogMessage(types.MessageEntry{
			MessageID: userID*1000 + int64(i),
			UserID:    userID,
			ChannelID: 555,
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("LogMessage failed: %v", err)
		}
	}
}

func TestRunEmptyLog(t *testing.T) {
	c, db := newTestConsolidator(t, &scriptedClient{})

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.UsersProcessed != 0 || result.FactsAdded != 0 || result.Archived != 0 || result.ArchiveFile != "" {
		t.Errorf("empty log produced work: %+v", result)
	}

	entries, _ := db.AllMessages()
	if len(entries) != 0 {
		t.Errorf("log has %d entries", len(entries))
	}
}

func TestRunInsertsNewFact(t *testing.T) {
	client := &scriptedClient{extractResp: fixed("FACT: works as a nurse")}
	c, db := newTestConsolidator(t, client)

	logMessages(t, db, 100, "long shift at the hospital today")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.UsersProcessed != 1 || result.FactsAdded != 1 || result.Errors != 0 {
		t.Errorf("result = %+v", result)
	}

	facts, _ := db.ListActiveFacts(100)
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].Text != "works as a nurse" || facts[0].ReferenceCount != 1 {
		t.Errorf("fact = %q refcount %d", facts[0].Text, facts[0].ReferenceCount)
	}
	if facts[0].SourceUserID != testBotID {
		t.Errorf("source = %d, want bot %d", facts[0].SourceUserID, testBotID)
	}
}

func TestRunDuplicateLeavesFactUntouched(t *testing.T) {
	client := &scriptedClient{
		extractResp:   fixed("FACT: is employed as a nurse"),
		reconcileResp: fixed("DUPLICATE:1"),
	}
	c, db := newTestConsolidator(t, client)

	id, err := db.InsertFact(100, "works as a nurse", testBotID, "")
	if err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	logMessages(t, db, 100, "another day at the hospital")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FactsAdded != 0 {
		t.Errorf("FactsAdded = %d, want 0 for a duplicate", result.FactsAdded)
	}

	facts, _ := db.ListActiveFacts(100)
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	f, _ := db.GetFact(id)
	if f.Text != "works as a nurse" || f.ReferenceCount != 1 {
		t.Errorf("existing fact changed: %q refcount %d", f.Text, f.ReferenceCount)
	}
}

func TestRunContradictionOverwrites(t *testing.T) {
	client := &scriptedClient{
		extractResp:   fixed("FACT: favorite color is red"),
		reconcileResp: fixed("CONTRADICTION:1"),
	}
	c, db := newTestConsolidator(t, client)

	id, _ := db.InsertFact(100, "favorite color is blue", testBotID, "")
	logMessages(t, db, 100, "red is the best color actually")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FactsAdded != 1 {
		t.Errorf("FactsAdded = %d, want 1", result.FactsAdded)
	}

	facts, _ := db.ListActiveFacts(100)
	if len(facts) != 1 {
		t.Fatalf("got %d active facts, want 1", len(facts))
	}
	if facts[0].ID != id {
		t.Errorf("fact row replaced instead of overwritten")
	}
	if facts[0].Text != "favorite color is red" {
		t.Errorf("text = %q, want the contradicting text", facts[0].Text)
	}
	if facts[0].ReferenceCount != 2 {
		t.Errorf("refcount = %d, want 2", facts[0].ReferenceCount)
	}
}

func TestRunReconcileFailureFailsOpen(t *testing.T) {
	client := &scriptedClient{
		extractResp: fixed("FACT: has two cats"),
		reconcileResp: func(string) (string, error) {
			return "", errors.New("backend down")
		},
	}
	c, db := newTestConsolidator(t, client)

	db.InsertFact(100, "has a dog", testBotID, "")
	logMessages(t, db, 100, "my cats knocked over the plant")

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	facts, _ := db.ListActiveFacts(100)
	if len(facts) != 2 {
		t.Errorf("got %d facts, want 2 (fact inserted despite reconciler outage)", len(facts))
	}
}

func TestRunUnknownDecisionInsertsAsNew(t *testing.T) {
	client := &scriptedClient{
		extractResp:   fixed("FACT: has two cats"),
		reconcileResp: fixed("probably a duplicate, hard to say"),
	}
	c, db := newTestConsolidator(t, client)

	db.InsertFact(100, "has a dog", testBotID, "")
	logMessages(t, db, 100, "my cats knocked over the plant")

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	facts, _ := db.ListActiveFacts(100)
	if len(facts) != 2 {
		t.Errorf("got %d facts, want 2 (unusable decision treated as new)", len(facts))
	}
}

func TestRunSentimentBoundedAndGated(t *testing.T) {
	client := &scriptedClient{sentimentResp: fixed(`{"anger": 10, "rapport": -10}`)}
	c, db := newTestConsolidator(t, client)

	// 50 hostile messages still move each dimension by at most 2.
	hostile := make([]string, 50)
	for i := range hostile {
		hostile[i] = "you are useless"
	}
	logMessages(t, db, 100, hostile...)
	// Below the gate: no sentiment run at all.
	logMessages(t, db, 200, "hi", "bye")

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, _ := db.GetMetrics(100)
	if m.Values[types.Anger] != 2 {
		t.Errorf("anger = %d after hostile batch, want 2", m.Values[types.Anger])
	}
	if m.Values[types.Rapport] != 3 {
		t.Errorf("rapport = %d, want 5-2=3", m.Values[types.Rapport])
	}

	m2, _ := db.GetMetrics(200)
	if m2.Values[types.Anger] != 0 {
		t.Errorf("gated user's anger = %d, want untouched 0", m2.Values[types.Anger])
	}
}

func TestRunSentimentGateLowered(t *testing.T) {
	// A configured threshold below the default takes effect: two
	// messages are enough when the analyzer's gate is set to 2.
	client := &scriptedClient{sentimentResp: fixed(`{"rapport": 1}`)}
	db, err := store.Open(filepath.Join(t.TempDir(), "test_data.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetArchiveDir(t.TempDir())

	analyzer := sentiment.New(client, false)
	analyzer.MinMessages = 2
	c := New(db,
		extract.New(client, false),
		analyzer,
		reconcile.New(client, false),
		testBotID)

	logMessages(t, db, 100, "hi", "bye")

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, _ := db.GetMetrics(100)
	if m.Values[types.Rapport] != 6 {
		t.Errorf("rapport = %d with lowered gate, want 6", m.Values[types.Rapport])
	}
}

func TestRunRespectsLocks(t *testing.T) {
	client := &scriptedClient{sentimentResp: fixed(`{"anger": 2, "trust": -2}`)}
	c, db := newTestConsolidator(t, client)

	if err := db.SetMetricLock(100, types.Anger, true); err != nil {
		t.Fatalf("SetMetricLock failed: %v", err)
	}
	logMessages(t, db, 100, "a", "b", "c")

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, _ := db.GetMetrics(100)
	if m.Values[types.Anger] != 0 {
		t.Errorf("locked anger moved to %d", m.Values[types.Anger])
	}
	if m.Values[types.Trust] != 3 {
		t.Errorf("unlocked trust = %d, want 5-2=3", m.Values[types.Trust])
	}
}

func TestRunArchivesAndClears(t *testing.T) {
	c, db := newTestConsolidator(t, &scriptedClient{})

	logMessages(t, db, 100, "one", "two", "three")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Archived != 3 || result.Deleted != 3 {
		t.Errorf("archived/deleted = %d/%d, want 3/3", result.Archived, result.Deleted)
	}
	if !strings.HasPrefix(result.ArchiveFile, "short_term_archive_") {
		t.Errorf("archive file = %q", result.ArchiveFile)
	}

	entries, _ := db.AllMessages()
	if len(entries) != 0 {
		t.Errorf("log has %d entries after run", len(entries))
	}
}

func TestRunExcludesBotMessages(t *testing.T) {
	client := &scriptedClient{extractResp: fixed("FACT: should not appear for the bot")}
	c, db := newTestConsolidator(t, client)

	logMessages(t, db, testBotID, "I am the assistant")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.UsersProcessed != 0 {
		t.Errorf("UsersProcessed = %d, want 0 when only the bot spoke", result.UsersProcessed)
	}
	if facts, _ := db.ListActiveFacts(testBotID); len(facts) != 0 {
		t.Errorf("bot accrued %d facts", len(facts))
	}
	// The bot's messages are still drained.
	if result.Archived != 1 {
		t.Errorf("archived = %d, want 1", result.Archived)
	}
}

func TestRunUserFailureIsIsolated(t *testing.T) {
	client := &scriptedClient{
		extractResp: func(prompt string) (string, error) {
			if strings.Contains(prompt, "user 100") {
				return "", errors.New("backend down")
			}
			return "FACT: survived the run", nil
		},
	}
	c, db := newTestConsolidator(t, client)

	logMessages(t, db, 100, "hi")
	logMessages(t, db, 200, "hello")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Errors != 1 {
		t.Errorf("Errors = %d, want 1", result.Errors)
	}
	if result.UsersProcessed != 1 {
		t.Errorf("UsersProcessed = %d, want 1", result.UsersProcessed)
	}

	facts, _ := db.ListActiveFacts(200)
	if len(facts) != 1 {
		t.Errorf("healthy user has %d facts, want 1", len(facts))
	}
	// The failed user's messages are archived with everyone else's.
	if result.Archived != 2 {
		t.Errorf("archived = %d, want 2", result.Archived)
	}
}

func TestRunIdenticalFactAbsorbed(t *testing.T) {
	// Byte-identical re-proposal hits the duplicate constraint and is
	// absorbed without an error.
	client := &scriptedClient{
		extractResp:   fixed("FACT: works as a nurse"),
		reconcileResp: fixed("NEW"),
	}
	c, db := newTestConsolidator(t, client)

	db.InsertFact(100, "works as a nurse", testBotID, "")
	logMessages(t, db, 100, "hospital again")

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Errors != 0 || result.FactsAdded != 0 {
		t.Errorf("result = %+v, want no errors and no additions", result)
	}
	if facts, _ := db.ListActiveFacts(100); len(facts) != 1 {
		t.Errorf("got %d facts, want 1", len(facts))
	}
}

func TestRunCancelledContext(t *testing.T) {
	c, db := newTestConsolidator(t, &scriptedClient{})

	logMessages(t, db, 100, "hi")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	// The log survives an abandoned run.
	entries, _ := db.AllMessages()
	if len(entries) != 1 {
		t.Errorf("log has %d entries, want 1 after cancelled run", len(entries))
	}
}
