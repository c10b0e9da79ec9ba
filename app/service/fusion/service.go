package fusion

import (
	"context"
	"fmt"
	"strings"

	"souqlive/app/client/memstore"
	"souqlive/app/config"
	"souqlive/app/model"
	"souqlive/app/service/history"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

const (
	sectionFacts   = "facts"
	sectionSummary = "summary"
	sectionMemory  = "memory"
	sectionRecent  = "recent"
)

// Result is the prompt-ready context blob plus its assembly report.
type Result struct {
	Text   string
	Report Report
}

// Report describes what went into a fused context, for observability:
// which sections carried content, which were empty (a new thread has no
// retrieved memory), and which got cut by the character budget.
type Report struct {
	Included  []string
	Empty     []string
	Truncated []string
}

// Service assembles the fused context for a thread: fact table first,
// then the rolling summary, then semantically retrieved memory, then the
// raw recent turns. When the budget is exceeded, recent turns are cut
// first, retrieved memory second, the summary last; facts are never cut.
type Service struct {
	cfg        *config.Config
	historySvc *history.Service
	memClient  *memstore.Client
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:        do.MustInvoke[*config.Config](di),
		historySvc: do.MustInvoke[*history.Service](di),
		memClient:  do.MustInvoke[*memstore.Client](di),
	}, nil
}

func (s *Service) Fuse(ctx context.Context, threadID string, facts model.FactTable, summaryText string) Result {
	fragments := s.memClient.Query(ctx, threadID, s.cfg.Memory.QueryLimit)
	recent := s.historySvc.All(threadID)

	return s.Assemble(facts, summaryText, fragments, recent)
}

// Assemble is the pure part of fusion: same inputs, byte-identical
// output.
func (s *Service) Assemble(facts model.FactTable, summaryText string, fragments []memstore.Fragment, recent []model.Turn) Result {
	sections := []struct {
		name  string
		label string
		body  string
	}{
		{sectionFacts, "KNOWN FACTS", facts.Format()},
		{sectionSummary, "CONVERSATION SUMMARY", strings.TrimSpace(summaryText)},
		{sectionMemory, "RELEVANT MEMORY", formatFragments(fragments)},
		{sectionRecent, "RECENT TURNS", formatTurns(recent)},
	}

	var report Report
	blocks := make([]string, len(sections))

	for i, sec := range sections {
		if sec.body == "" {
			report.Empty = append(report.Empty, sec.name)
			continue
		}
		report.Included = append(report.Included, sec.name)
		blocks[i] = sec.label + ":\n" + sec.body
	}

	budget := s.cfg.Conversation.FusionBudgetChars

	// Cut lowest-priority sections until the blob fits. Facts (index 0)
	// are exempt.
	for _, i := range []int{3, 2, 1} {
		overflow := totalLength(blocks) - budget
		if overflow <= 0 {
			break
		}
		if blocks[i] == "" {
			continue
		}

		runes := []rune(blocks[i])
		if len(runes) <= overflow {
			blocks[i] = ""
			report.Included = pie.FilterNot(report.Included, func(name string) bool {
				return name == sections[i].name
			})
		} else {
			blocks[i] = strings.TrimSpace(string(runes[:len(runes)-overflow]))
		}

		report.Truncated = append(report.Truncated, sections[i].name)
	}

	text := strings.Join(pie.FilterNot(blocks, func(b string) bool {
		return b == ""
	}), "\n\n")

	return Result{Text: text, Report: report}
}

func formatFragments(fragments []memstore.Fragment) string {
	if len(fragments) == 0 {
		return ""
	}

	lines := pie.Map(fragments, func(f memstore.Fragment) string {
		return "- " + strings.TrimSpace(f.Content)
	})

	return strings.Join(lines, "\n")
}

func formatTurns(turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := pie.Map(turns, func(t model.Turn) string {
		return fmt.Sprintf("%s: %s", t.Role, t.Content)
	})

	return strings.Join(lines, "\n")
}

func totalLength(blocks []string) int {
	total := 0
	joined := 0

	for _, b := range blocks {
		if b == "" {
			continue
		}
		if joined > 0 {
			total += 2
		}
		total += len([]rune(b))
		joined++
	}

	return total
}
