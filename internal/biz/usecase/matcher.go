package usecase

import (
	"math/rand"
	"strings"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

// MatchType classifies how a pattern matched the user message
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
	MatchWord  MatchType = "word"
	MatchNone  MatchType = "none"
)

// PatternMatch is the outcome of matching one pattern against a message
type PatternMatch struct {
	Match      bool
	Similarity float64
	Pattern    string
	Type       MatchType
}

// MatchResult is a selected rule plus the response chosen from it
type MatchResult struct {
	Rule       *domain.ResponseRule
	Response   string
	Pattern    string
	Similarity float64
	Type       MatchType
}

// Matcher selects auto-responses from the rule table. The random source is
// injected so response selection can be made deterministic in tests.
type Matcher struct {
	threshold float64
	randIntn  func(n int) int
}

// NewMatcher creates a matcher with the given fuzzy threshold (percent)
func NewMatcher(threshold float64, randIntn func(n int) int) *Matcher {
	if threshold <= 0 {
		threshold = 85
	}
	if randIntn == nil {
		randIntn = rand.Intn
	}
	return &Matcher{threshold: threshold, randIntn: randIntn}
}

// MatchRule finds a response for the message, or nil when no rule passes.
// Legacy exact commands win immediately in table order. Pattern rules compete
// globally: the highest-scoring pattern across all rules wins, with the first
// rule in table order kept on ties.
func (m *Matcher) MatchRule(message string, rules []domain.ResponseRule) *MatchResult {
	userMessage := strings.ToLower(strings.TrimSpace(message))

	var best *MatchResult
	for i := range rules {
		rule := &rules[i]

		if rule.IsLegacy() {
			if userMessage == strings.ToLower(rule.Command) {
				return &MatchResult{
					Rule:       rule,
					Response:   rule.Response,
					Pattern:    rule.Command,
					Similarity: 100,
					Type:       MatchExact,
				}
			}
			continue
		}

		if len(rule.Patterns) == 0 || len(rule.Responses) == 0 {
			continue
		}

		for _, pattern := range rule.Patterns {
			result := m.isPatternMatch(userMessage, strings.ToLower(pattern))
			if !result.Match {
				continue
			}
			if best == nil || result.Similarity > best.Similarity {
				best = &MatchResult{
					Rule:       rule,
					Pattern:    result.Pattern,
					Similarity: result.Similarity,
					Type:       result.Type,
				}
			}
		}
	}

	if best == nil {
		return nil
	}
	best.Response = best.Rule.Responses[m.randIntn(len(best.Rule.Responses))]
	return best
}

// isPatternMatch checks one pattern against the message. Exact equality or
// containment scores 100 and takes priority over the fuzzy and token paths.
func (m *Matcher) isPatternMatch(userMessage, pattern string) PatternMatch {
	if userMessage == pattern || strings.Contains(userMessage, pattern) {
		return PatternMatch{Match: true, Similarity: 100, Pattern: pattern, Type: MatchExact}
	}

	similarity := Similarity(userMessage, pattern)
	if similarity >= m.threshold {
		return PatternMatch{Match: true, Similarity: similarity, Pattern: pattern, Type: MatchFuzzy}
	}

	// Token-level match: enough pattern words must be close to some message word
	patternWords := longWords(pattern)
	userWords := longWords(userMessage)
	if len(patternWords) > 0 && len(userWords) > 0 {
		matching := 0
		for _, pw := range patternWords {
			for _, uw := range userWords {
				if Similarity(uw, pw) >= m.threshold {
					matching++
					break
				}
			}
		}
		wordSimilarity := float64(matching) / float64(len(patternWords)) * 100
		if wordSimilarity >= m.threshold {
			return PatternMatch{Match: true, Similarity: wordSimilarity, Pattern: pattern, Type: MatchWord}
		}
	}

	return PatternMatch{Similarity: similarity, Pattern: pattern, Type: MatchNone}
}

// longWords splits on spaces and keeps tokens longer than two runes
func longWords(s string) []string {
	var words []string
	for _, w := range strings.Split(s, " ") {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}
	return words
}
