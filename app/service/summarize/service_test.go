package summarize

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"souqlive/app/config"
	"souqlive/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	return &Service{cfg: cfg}
}

func userTurn(content string) model.Turn {
	return model.Turn{Role: model.RoleUser, Content: content, CreatedAt: time.Now()}
}

func TestSummarizeShortWindowKeepsEverything(t *testing.T) {
	svc := newService(t)

	turns := []model.Turn{
		userTurn("Hi, I need an apartment."),
		userTurn("Budget is around 700 pounds."),
	}

	summary := svc.Summarize(turns, 5)

	assert.Contains(t, summary, "apartment")
	assert.Contains(t, summary, "700")
}

func TestSummarizeSelectsLimitedSentences(t *testing.T) {
	svc := newService(t)

	var turns []model.Turn
	for i := range 20 {
		turns = append(turns, userTurn(fmt.Sprintf("This is filler sentence number %d about nothing special.", i)))
	}
	turns = append(turns, userTurn("I really need a villa in Kyrenia with a villa garden and villa pool."))

	summary := svc.Summarize(turns, 3)

	require.NotEmpty(t, summary)
	assert.LessOrEqual(t, len(strings.Split(summary, ".")), 4)
}

func TestSummarizeNeverExceedsCharCap(t *testing.T) {
	svc := newService(t)
	svc.cfg.Conversation.MaxSummaryChars = 200

	long := strings.Repeat("Kyrenia villas are wonderful and spacious and sunny. ", 50)
	turns := []model.Turn{userTurn(long), userTurn(long), userTurn(long)}

	summary := svc.Summarize(turns, 50)

	assert.LessOrEqual(t, len([]rune(summary)), 200)
	assert.NotEmpty(t, summary)
}

func TestSummarizeDeterministic(t *testing.T) {
	svc := newService(t)

	var turns []model.Turn
	for i := range 30 {
		turns = append(turns, userTurn(fmt.Sprintf("Sentence %d talks about apartments, budgets and moving dates.", i)))
	}

	first := svc.Summarize(turns, 5)
	second := svc.Summarize(turns, 5)

	assert.Equal(t, first, second)
}

func TestSummarizeEmptyWindow(t *testing.T) {
	svc := newService(t)

	assert.Empty(t, svc.Summarize(nil, 5))
	assert.Empty(t, svc.Summarize([]model.Turn{{Role: model.RoleUser, Content: "   "}}, 5))
}

func TestSummarizeAgentTurnsFilters(t *testing.T) {
	svc := newService(t)

	turns := []model.Turn{
		{Role: model.RoleUser, Content: "Tell me about boat trips.", Domain: "tours_agent"},
		{Role: model.RoleUser, Content: "I want a seaside apartment.", Domain: "real_estate_agent"},
		{Role: model.RoleAssistant, Content: "There are several seaside listings.", Domain: "real_estate_agent"},
	}

	summary := svc.SummarizeAgentTurns(turns, "real_estate_agent")

	assert.Contains(t, summary, "seaside")
	assert.NotContains(t, summary, "boat")
}
