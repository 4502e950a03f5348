// Package extract turns a user's recent messages into candidate
// long-term facts via the completion service.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mirabot/mira/internal/llm"
)

const (
	// MaxFacts caps how many facts one extraction may propose.
	MaxFacts = 5

	// TranscriptLimit bounds how many of the user's most recent messages
	// are sent to the model.
	TranscriptLimit = 50

	factPrefix    = "FACT:"
	noFactsMarker = "NO_FACTS"
)

const systemInstruction = `You extract long-term facts about a chat user from their recent messages.

Rules:
- Only extract facts clearly about THIS user (their preferences, life details, traits).
- Do NOT extract facts about third parties the user merely asks or talks about.
- Each fact is one short declarative sentence.
- Extract at most 5 facts.
- Output one fact per line, each prefixed with "FACT: ".
- If the messages contain no durable facts about the user, output exactly "NO_FACTS".`

// Extractor proposes facts from message transcripts.
type Extractor struct {
	client  llm.CompletionClient
	verbose bool
}

// New creates an Extractor.
func New(client llm.CompletionClient, verbose bool) *Extractor {
	return &Extractor{client: client, verbose: verbose}
}

// Extract returns 0..5 proposed fact strings for the user. A sentinel or
// unparseable response yields an empty slice, never an error; an error is
// only returned when the completion call itself fails.
func (e *Extractor) Extract(ctx context.Context, userID int64, messages []string) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > TranscriptLimit {
		messages = messages[len(messages)-TranscriptLimit:]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent messages from user %d:\n\n", userID)
	for _, m := range messages {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}

	resp, err := e.client.Complete(ctx, systemInstruction, sb.String())
	if err != nil {
		return nil, fmt.Errorf("fact extraction failed for user %d: %w", userID, err)
	}

	facts := ParseFactLines(resp)
	if e.verbose {
		log.Printf("[extract] user %d: %d messages -> %d facts", userID, len(messages), len(facts))
	}
	return facts, nil
}

// ParseFactLines parses the model's response into trimmed fact strings.
// Lines without the FACT: prefix are ignored; the NO_FACTS sentinel (or
// anything unrecognizable) yields nil.
func ParseFactLines(resp string) []string {
	resp = llm.ExtractJSON(resp) // tolerate a fenced response
	var facts []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if strings.EqualFold(line, noFactsMarker) {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), factPrefix) {
			continue
		}
		fact := strings.TrimSpace(line[len(factPrefix):])
		if fact == "" {
			continue
		}
		facts = append(facts, fact)
		if len(facts) == MaxFacts {
			break
		}
	}
	return facts
}
