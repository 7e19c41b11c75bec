// Package sanitize redacts credential-shaped substrings from chat text
// before it is ever handed to a prompt or written to a journal file. The
// pattern set and replace-in-place approach follow a simple pattern-scanner
// design, generalized with additional pattern classes (JWTs, URL-embedded
// credentials, env-style assignments, database URLs) and a uniform
// "[REDACTED]" replacement token.
package sanitize

import (
	"context"
	"regexp"
)

// rule pairs a compiled pattern with the group to redact. group 0 means
// redact the whole match; a positive group redacts only that submatch,
// preserving the surrounding text (e.g. keeping "key=" but redacting its
// value).
type rule struct {
	pattern *regexp.Regexp
	group   int
}

// Redacted is the literal substituted for every match.
const Redacted = "[REDACTED]"

// rules is evaluated in order; earlier rules run before later ones see the
// result, so a key embedded in a URL is redacted by whichever rule's pattern
// still matches the original, unmodified text at the time it runs. Patterns
// are intentionally independent regexes rather than one alternation so each
// can target its own capture group.
var rules = []rule{
	// OpenAI / Anthropic style API keys: sk-..., sk-proj-..., sk-ant-...
	{regexp.MustCompile(`\bsk-(?:proj-|ant-)?[A-Za-z0-9_-]{16,}\b`), 0},
	// AWS-style access key IDs.
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), 0},
	// GitHub tokens: ghp_, gho_, ghu_, ghs_, ghr_.
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), 0},
	// Bearer / Authorization header values.
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._-]{10,})`), 2},
	{regexp.MustCompile(`(?i)(authorization:\s*(?:bearer\s+)?)(\S+)`), 2},
	// JWT-shaped three-segment base64url strings.
	{regexp.MustCompile(`\b[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`), 0},
	// key=value / token=value / secret=value, quoted or bare.
	{regexp.MustCompile(`(?i)\b(?:api[_-]?key|token|secret|password)\s*[:=]\s*['"]?[^\s'"]{4,}['"]?`), 0},
	// user:pass@host credentials embedded in URLs.
	{regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s/@]+:[^\s/@]+@`), 0},
	// NAME=value env-style assignments where NAME looks secret-shaped; keep
	// the name, redact only the value.
	{regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:KEY|TOKEN|SECRET|PASSWORD)[A-Z0-9_]*=)(\S+)`), 2},
	// PEM private key blocks.
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), 0},
}

// Scanner redacts credential-shaped text. It exists as an interface so
// callers (and tests) can substitute a no-op or recording implementation.
type Scanner interface {
	Redact(ctx context.Context, text string) (string, bool, error)
}

// RegexScanner is the default Scanner, applying the fixed rule set above.
type RegexScanner struct{}

// NewRegexScanner constructs the default redaction scanner.
func NewRegexScanner() *RegexScanner {
	return &RegexScanner{}
}

// Redact returns text with every matched rule substituted by [REDACTED],
// and whether any substitution was made. It checks ctx between rules so a
// caller enforcing an overall timeout can bail out of a pathological input.
func (s *RegexScanner) Redact(ctx context.Context, text string) (string, bool, error) {
	redacted := false
	out := text

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return out, redacted, err
		}

		if r.group == 0 {
			if r.pattern.MatchString(out) {
				redacted = true
			}
			out = r.pattern.ReplaceAllString(out, Redacted)
			continue
		}

		out = r.pattern.ReplaceAllStringFunc(out, func(match string) string {
			loc := r.pattern.FindStringSubmatchIndex(match)
			if loc == nil {
				return match
			}
			groupStart, groupEnd := loc[2*r.group], loc[2*r.group+1]
			if groupStart < 0 {
				return match
			}
			redacted = true
			return match[:groupStart] + Redacted + match[groupEnd:]
		})
	}

	return out, redacted, nil
}
