// Package review interprets a model's review of a rendered video.
package review

import "strings"

// DefaultAcceptPhrase is what the review prompt asks the model to answer when
// the video has no problems.
const DefaultAcceptPhrase = "No issues found"

// Verdict is the outcome of one review turn.
type Verdict struct {
	Accepted bool
	Issues   string // trimmed review text; empty when accepted
}

// Interpreter decides acceptance by looking for AcceptPhrase in the review.
type Interpreter struct {
	AcceptPhrase  string
	CaseSensitive bool
}

// Interpret classifies a review answer. Anything without the acceptance
// phrase is a rejection that carries the whole text as issues.
func (in Interpreter) Interpret(text string) Verdict {
	phrase := in.AcceptPhrase
	if phrase == "" {
		phrase = DefaultAcceptPhrase
	}
	body := strings.TrimSpace(text)

	haystack, needle := body, phrase
	if !in.CaseSensitive {
		haystack, needle = strings.ToLower(body), strings.ToLower(phrase)
	}
	if strings.Contains(haystack, needle) {
		return Verdict{Accepted: true}
	}
	if body == "" {
		body = "the review was empty"
	}
	return Verdict{Issues: body}
}
