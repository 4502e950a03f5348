// Package reconcile classifies a candidate fact against a user's
// existing active facts: genuinely new, a duplicate, or a contradiction.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mirabot/mira/internal/llm"
)

// Outcome is the reconciler's classification of a candidate fact.
type Outcome int

const (
	// New: the candidate carries information none of the existing facts do.
	OutcomeNew Outcome = iota
	// Duplicate: same semantic content as an existing fact, reworded.
	Duplicate
	// Contradiction: mutually exclusive with an existing fact.
	Contradiction
	// Unknown: the model's answer was unusable. Callers treat this as New
	// so a fact is never silently dropped, but tests can tell the cases
	// apart.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case Duplicate:
		return "duplicate"
	case Contradiction:
		return "contradiction"
	default:
		return "unknown"
	}
}

// Decision pairs an outcome with the 1-based index of the matched
// existing fact (meaningful for Duplicate and Contradiction only).
type Decision struct {
	Outcome Outcome
	Index   int
}

const systemInstruction = `You compare a candidate fact about a user against their existing facts.

Answer with exactly one token:
- NEW if the candidate says something none of the existing facts say.
- DUPLICATE:<n> if the candidate restates existing fact number n in different words.
- CONTRADICTION:<n> if the candidate and existing fact number n cannot both be true (e.g. two different favorite colors).

No explanation, just the token.`

// Reconciler classifies candidate facts. It is pure with respect to its
// inputs; callers pass the snapshot of existing facts and apply the
// decision themselves.
type Reconciler struct {
	client  llm.CompletionClient
	verbose bool
}

// New creates a Reconciler.
func New(client llm.CompletionClient, verbose bool) *Reconciler {
	return &Reconciler{client: client, verbose: verbose}
}

// Classify compares the candidate against the enumerated existing facts.
// Only call with a non-empty existing list; with nothing to compare
// against, the candidate is trivially new. A failed completion call is
// returned as an error; an unusable response is Decision{Unknown, 0}.
// An index outside 1..len(existing) also comes back as Unknown.
func (r *Reconciler) Classify(ctx context.Context, candidate string, existing []string) (Decision, error) {
	if len(existing) == 0 {
		return Decision{Outcome: OutcomeNew}, nil
	}

	var sb strings.Builder
	sb.WriteString("Existing facts:\n")
	for i, f := range existing {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, f)
	}
	fmt.Fprintf(&sb, "\nCandidate fact: %s\n", candidate)

	resp, err := r.client.Complete(ctx, systemInstruction, sb.String())
	if err != nil {
		return Decision{Outcome: Unknown}, fmt.Errorf("reconciliation failed: %w", err)
	}

	d := ParseDecision(resp, len(existing))
	if r.verbose {
		log.Printf("[reconcile] %q -> %s (index %d)", candidate, d.Outcome, d.Index)
	}
	return d, nil
}

// ParseDecision parses the model's classification token. Anything that is
// not a well-formed NEW/DUPLICATE:<n>/CONTRADICTION:<n> with n in
// 1..existingCount is Unknown.
func ParseDecision(resp string, existingCount int) Decision {
	token := strings.ToUpper(strings.TrimSpace(llm.ExtractJSON(resp)))
	// Keep only the first line; models sometimes append commentary.
	if idx := strings.IndexAny(token, "\r\n"); idx != -1 {
		token = strings.TrimSpace(token[:idx])
	}

	if token == "NEW" {
		return Decision{Outcome: OutcomeNew}
	}

	for _, p := range []struct {
		prefix  string
		outcome Outcome
	}{
		{"DUPLICATE:", Duplicate},
		{"CONTRADICTION:", Contradiction},
	} {
		if !strings.HasPrefix(token, p.prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(token[len(p.prefix):]))
		if err != nil || n < 1 || n > existingCount {
			return Decision{Outcome: Unknown}
		}
		return Decision{Outcome: p.outcome, Index: n}
	}

	return Decision{Outcome: Unknown}
}
