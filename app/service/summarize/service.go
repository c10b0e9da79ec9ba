package summarize

import (
	"strings"

	"souqlive/app/config"
	"souqlive/app/model"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

// Service produces bounded extractive summaries of a window of turns.
// The output is deterministic for a given window and never exceeds the
// configured character cap, whatever the input size.
type Service struct {
	cfg *config.Config
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg: do.MustInvoke[*config.Config](di),
	}, nil
}

type scoredSentence struct {
	index int
	text  string
	score float64
}

// Summarize selects up to maxSentences representative sentences from the
// window, in chronological order, hard-capped at MaxSummaryChars.
func (s *Service) Summarize(turns []model.Turn, maxSentences int) string {
	sentences := splitSentences(turns)
	if len(sentences) == 0 {
		return ""
	}

	if len(sentences) > maxSentences {
		freq := wordFrequencies(sentences)

		scored := make([]scoredSentence, len(sentences))
		for i, sent := range sentences {
			scored[i] = scoredSentence{
				index: i,
				text:  sent,
				score: scoreSentence(sent, i, len(sentences), freq),
			}
		}

		scored = pie.SortStableUsing(scored, func(a, b scoredSentence) bool {
			return a.score > b.score
		})
		scored = scored[:maxSentences]
		scored = pie.SortStableUsing(scored, func(a, b scoredSentence) bool {
			return a.index < b.index
		})

		sentences = pie.Map(scored, func(sent scoredSentence) string {
			return sent.text
		})
	}

	return capText(strings.Join(sentences, " "), s.cfg.Conversation.MaxSummaryChars)
}

// SummarizeAgentTurns summarizes only the turns owned by the given
// downstream agent, used when a thread has talked to multiple domains.
func (s *Service) SummarizeAgentTurns(turns []model.Turn, agentName string) string {
	filtered := pie.Filter(turns, func(turn model.Turn) bool {
		return turn.Domain == agentName
	})

	return s.Summarize(filtered, s.cfg.Conversation.MaxSummarySentences)
}

func splitSentences(turns []model.Turn) []string {
	var out []string

	for _, turn := range turns {
		var b strings.Builder

		for _, r := range turn.Content {
			b.WriteRune(r)
			if r == '.' || r == '!' || r == '?' {
				if sent := strings.TrimSpace(b.String()); sent != "" {
					out = append(out, sent)
				}
				b.Reset()
			}
		}

		if sent := strings.TrimSpace(b.String()); sent != "" {
			out = append(out, sent)
		}
	}

	return out
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "your": {}, "have": {}, "are": {}, "was": {}, "but": {},
	"not": {}, "can": {}, "what": {}, "would": {}, "like": {}, "about": {},
}

func contentWords(sentence string) []string {
	fields := strings.Fields(strings.ToLower(sentence))

	return pie.FilterNot(pie.Map(fields, func(w string) string {
		return strings.Trim(w, ".,!?;:'\"()")
	}), func(w string) bool {
		if len(w) < 3 {
			return true
		}
		_, stop := stopwords[w]
		return stop
	})
}

func wordFrequencies(sentences []string) map[string]int {
	freq := map[string]int{}

	for _, sent := range sentences {
		for _, w := range contentWords(sent) {
			freq[w]++
		}
	}

	return freq
}

// scoreSentence rates a sentence by the density of words that recur
// across the window, with a bonus for the opening and closing of it.
func scoreSentence(sentence string, index, total int, freq map[string]int) float64 {
	words := contentWords(sentence)
	if len(words) == 0 {
		return 0
	}

	sum := 0
	for _, w := range words {
		sum += freq[w]
	}

	score := float64(sum) / float64(len(words))

	if index == 0 || index == total-1 {
		score += 1
	}

	return score
}

func capText(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	return string(runes[:maxChars])
}
