package core

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"techsupport.dev/assistant/internal/store"
)

// minPartialLen is the shortest token (and field word) considered for
// partial word matching, so "booting" finds "boot" but "in" finds nothing.
const minPartialLen = 4

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"i": {}, "me": {}, "my": {}, "mine": {}, "we": {}, "our": {}, "you": {}, "your": {},
	"it": {}, "its": {}, "it's": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"is": {}, "am": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"has": {}, "have": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "from": {}, "by": {},
	"can": {}, "cannot": {}, "can't": {}, "please": {}, "help": {}, "get": {}, "got": {},
	"problem": {}, "problems": {}, "issue": {}, "issues": {}, "trouble": {},
	"something": {}, "thing": {}, "stuff": {},
}

// Pattern is a hand-authored override: when its expression matches the raw
// query, the question with QuestionID becomes a candidate regardless of its
// keywords. Patterns are OR'd with keyword matching, never ranked above it.
type Pattern struct {
	Name       string
	QuestionID int64
	expr       *regexp.Regexp
}

func NewPattern(name, expr string, questionID int64) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, errors.Wrapf(err, "invalid pattern %q", name)
	}
	return Pattern{Name: name, QuestionID: questionID, expr: re}, nil
}

// Candidate is a question the matcher considers a plausible answer, with its
// 1-based position in the list it was matched against.
type Candidate struct {
	Position int            `json:"position"`
	Question store.Question `json:"question"`
}

// Matcher maps a user utterance to candidate questions. It filters and never
// ranks: candidates keep the order of the question list.
type Matcher struct {
	patterns []Pattern
}

func NewMatcher(patterns []Pattern) *Matcher {
	return &Matcher{patterns: patterns}
}

// Match resolves query against questions. A query made only of digits picks a
// question by position; anything else goes through text matching.
func (m *Matcher) Match(query string, questions []store.Question) []Candidate {
	trimmed := strings.TrimSpace(query)
	if n, ok := parsePosition(trimmed); ok {
		if n < 1 || n > len(questions) {
			return nil
		}
		return []Candidate{{Position: n, Question: questions[n-1]}}
	}

	normalized := asciiLower(trimmed)
	tokens := filterTokens(normalized)
	if len(tokens) == 0 {
		return nil
	}

	var candidates []Candidate
	for i, q := range questions {
		fields := questionFields(q)
		if containsAny(fields, normalized) || m.tokenMatch(tokens, fields) || m.patternMatch(normalized, q.ID) {
			candidates = append(candidates, Candidate{Position: i + 1, Question: q})
		}
	}
	if len(candidates) > 0 {
		return candidates
	}
	return lenientMatch(normalized, questions)
}

func (m *Matcher) tokenMatch(tokens, fields []string) bool {
	for _, tok := range tokens {
		if containsAny(fields, tok) {
			return true
		}
		if len(tok) < minPartialLen {
			continue
		}
		for _, f := range fields {
			for _, word := range strings.Fields(f) {
				if len(word) < minPartialLen {
					continue
				}
				if strings.Contains(tok, word) || strings.Contains(word, tok) {
					return true
				}
			}
		}
	}
	return false
}

func (m *Matcher) patternMatch(normalized string, questionID int64) bool {
	for _, p := range m.patterns {
		if p.QuestionID == questionID && p.expr != nil && p.expr.MatchString(normalized) {
			return true
		}
	}
	return false
}

// lenientMatch is the second pass used when nothing matched: any query word
// longer than two characters found verbatim in a field is enough.
func lenientMatch(normalized string, questions []store.Question) []Candidate {
	var words []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}

	var candidates []Candidate
	for i, q := range questions {
		fields := questionFields(q)
		for _, w := range words {
			if containsAny(fields, w) {
				candidates = append(candidates, Candidate{Position: i + 1, Question: q})
				break
			}
		}
	}
	return candidates
}

func filterTokens(normalized string) []string {
	var tokens []string
	for _, raw := range strings.Fields(normalized) {
		tok := strings.Trim(raw, ".,!?;:\"'()[]")
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// questionFields returns keywords, title and description lowercased.
func questionFields(q store.Question) []string {
	fields := make([]string, 0, len(q.Keywords)+2)
	for _, k := range q.Keywords {
		fields = append(fields, asciiLower(k))
	}
	return append(fields, asciiLower(q.Title), asciiLower(q.Description))
}

func containsAny(fields []string, s string) bool {
	for _, f := range fields {
		if strings.Contains(f, s) {
			return true
		}
	}
	return false
}

// parsePosition reports whether s is made only of ASCII digits. Values too
// large to be a position come back as -1, which is never in range.
func parsePosition(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1, true
	}
	return n, true
}

// asciiLower folds only A-Z so results never depend on locale.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
