package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single utterance within a conversation thread.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RollingSummary covers a contiguous block of turns. Summaries are
// append-only per thread; later summaries supersede earlier ones but
// never replace them.
type RollingSummary struct {
	Text      string    `json:"text"`
	FromTurn  int       `json:"from_turn"`
	ToTurn    int       `json:"to_turn"`
	CreatedAt time.Time `json:"created_at"`
}

// FactTable maps fact keys (location, budget, bedrooms, ...) to their
// latest extracted values. Last write wins per key.
type FactTable map[string]any

// Merge applies a patch on top of the table, overwriting existing keys
// only when the patch carries a value for them.
func (t FactTable) Merge(patch FactTable) {
	for k, v := range patch {
		t[k] = v
	}
}

func (t FactTable) Clone() FactTable {
	out := make(FactTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Format renders the table as a compact key: value list with stable key
// order, one fact per line.
func (t FactTable) Format() string {
	if len(t) == 0 {
		return ""
	}

	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, t[k])
	}

	return strings.TrimRight(b.String(), "\n")
}

// Snapshot is the durable representation of a thread's derived state,
// written to the memory store and read back on rehydration.
type Snapshot struct {
	ThreadID      string    `json:"thread_id"`
	ActiveDomain  string    `json:"active_domain"`
	CurrentIntent string    `json:"current_intent"`
	SummaryText   string    `json:"summary_text"`
	Facts         FactTable `json:"facts"`
	TurnCount     int       `json:"turn_count"`
	SavedAt       time.Time `json:"saved_at"`
}
