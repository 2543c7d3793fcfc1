// Package redact masks credentials in text before it is posted anywhere.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Applied lists the rules that changed the text.
type Applied struct {
	Names []string
}

type rule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

var builtin = []rule{
	{"github_token", regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}\b`), "[REDACTED:GITHUB_TOKEN]"},
	{"github_pat", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`), "[REDACTED:GITHUB_TOKEN]"},
	{"anthropic_key", regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{10,}`), "[REDACTED:ANTHROPIC_KEY]"},
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{10,}`), "[REDACTED:OPENAI_KEY]"},
	{"url_credentials", regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`), "://[REDACTED]@"},
}

// Masker replaces configured secret values and well-known token shapes.
type Masker struct {
	secrets []string
}

// New returns a Masker for the given literal secrets. Values shorter than
// four characters are ignored.
func New(secrets ...string) *Masker {
	var kept []string
	for _, s := range secrets {
		if len(strings.TrimSpace(s)) >= 4 {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Masker{secrets: kept}
}

// Text returns s with secrets replaced.
func (m *Masker) Text(s string) (string, Applied) {
	applied := Applied{}
	out := s
	if m != nil {
		for _, secret := range m.secrets {
			if strings.Contains(out, secret) {
				out = strings.ReplaceAll(out, secret, "***")
				applied.Names = appendOnce(applied.Names, "configured_secret")
			}
		}
	}
	for _, r := range builtin {
		if r.re.MatchString(out) {
			out = r.re.ReplaceAllString(out, r.replacement)
			applied.Names = append(applied.Names, r.name)
		}
	}
	return out, applied
}

// String is Text without the report.
func (m *Masker) String(s string) string {
	out, _ := m.Text(s)
	return out
}

func appendOnce(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
