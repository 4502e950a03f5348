// Package sentiment turns a batch of user messages into bounded
// relationship-metric updates.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mirabot/mira/internal/llm"
	"github.com/mirabot/mira/internal/types"
)

const (
	// MinMessages is the gate below which no sentiment analysis runs:
	// single messages are too noisy to move relationship state.
	MinMessages = 3

	// MaxDelta bounds the per-dimension change from one batch, however
	// many messages it contains. Fifty hostile messages move anger by at
	// most 2, not 50.
	MaxDelta = 2
)

const systemInstruction = `You judge the holistic tone of a batch of chat messages from one user toward an assistant, and adjust relationship metrics.

Rules:
- Judge the WHOLE batch as one unit. Message volume must not scale the result.
- For each metric, return a signed integer delta between -2 and +2 inclusive.
- Omit metrics that should not change.
- If the batch is neutral in tone and a metric's current value is elevated (above 3), apply a small negative delta so it decays toward baseline.
- Respond with a single JSON object mapping metric names to deltas, e.g. {"rapport": 1, "anger": -1}.`

// Analyzer computes metric updates from message batches.
type Analyzer struct {
	client  llm.CompletionClient
	verbose bool

	// MinMessages is the batch size below which Analyze does nothing.
	// Defaults to the package constant; the analyzer owns this gate.
	MinMessages int
}

// New creates an Analyzer with the default message gate.
func New(client llm.CompletionClient, verbose bool) *Analyzer {
	return &Analyzer{client: client, verbose: verbose, MinMessages: MinMessages}
}

// Analyze judges the batch and returns new absolute values per dimension,
// or nil for "no update". Whatever the model returns, deltas are clamped
// to [-MaxDelta, +MaxDelta] and the resulting values into each
// dimension's bounds before being handed back. A parse failure yields
// (nil, nil): no update, not an error.
func (a *Analyzer) Analyze(ctx context.Context, userID int64, messages []string, current *types.Metrics) (map[types.Dimension]int, error) {
	if len(messages) < a.MinMessages {
		return nil, nil
	}

	resp, err := a.client.Complete(ctx, systemInstruction, a.buildPrompt(messages, current))
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed for user %d: %w", userID, err)
	}

	deltas := ParseDeltas(resp)
	if len(deltas) == 0 {
		return nil, nil
	}

	values := make(map[types.Dimension]int, len(deltas))
	for d, delta := range deltas {
		values[d] = d.Clamp(current.Value(d) + delta)
	}
	if a.verbose {
		log.Printf("[sentiment] user %d: %d messages -> %d dimension updates", userID, len(messages), len(values))
	}
	return values, nil
}

func (a *Analyzer) buildPrompt(messages []string, current *types.Metrics) string {
	var sb strings.Builder
	sb.WriteString("Current metrics:\n")
	for _, d := range types.SentimentDimensions {
		fmt.Fprintf(&sb, "  %s: %d\n", d, current.Value(d))
	}
	sb.WriteString("\nMessages:\n")
	for _, m := range messages {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseDeltas parses the model's JSON response into clamped per-dimension
// deltas. Unknown metric names and the formality dimension are dropped;
// out-of-range deltas are clamped, not rejected. Returns nil when nothing
// usable was found.
func ParseDeltas(resp string) map[types.Dimension]int {
	raw := llm.SanitizeJSONNumbers(llm.ExtractJSON(resp))

	var parsed map[string]json.Number
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	deltas := make(map[types.Dimension]int)
	for name, num := range parsed {
		d, err := types.ParseDimension(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			continue // model invented a metric
		}
		if d == types.Formality {
			continue // not part of the automated path
		}
		f, err := num.Float64()
		if err != nil {
			continue
		}
		delta := int(f)
		if delta > MaxDelta {
			delta = MaxDelta
		}
		if delta < -MaxDelta {
			delta = -MaxDelta
		}
		if delta != 0 {
			deltas[d] = delta
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}
