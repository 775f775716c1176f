package driver

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/osmike/sweeper/internal/domain"
)

// FieldKind tells the driver how to put a value into a form control.
type FieldKind string

const (
	// Text types the value into an input.
	Text FieldKind = "text"
	// Select picks the <option> whose visible text equals the value.
	Select FieldKind = "select"
	// Pick clicks the control, then clicks the first element whose text contains the value.
	Pick FieldKind = "pick"
)

// Field maps one form control to a record column or a literal value.
type Field struct {
	// Selector is the CSS selector of the control.
	Selector string `yaml:"selector"`

	// Column is the record column to read. Ignored when Value is set.
	Column string `yaml:"column"`

	// Value is a literal used instead of a column (e.g., a preferred store).
	Value string `yaml:"value"`

	// Kind defaults to Text.
	Kind FieldKind `yaml:"kind"`

	// Format post-processes the value: "postal_code" or "date:<from>><to>" with Go layouts.
	Format string `yaml:"format"`

	// Optional fields are skipped when the value is empty.
	Optional bool `yaml:"optional"`
}

var probeDomains = []string{"example.com", "test.com", "dummy.org", "fake.net"}

const emailAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomEmail builds a throwaway address so a probe never reveals a real contact.
func randomEmail(r *rand.Rand) string {
	n := 8 + r.IntN(5)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(emailAlphabet[r.IntN(len(emailAlphabet))])
	}
	return b.String() + "@" + probeDomains[r.IntN(len(probeDomains))]
}

// formatValue applies a Field.Format to raw.
func formatValue(format, raw string) (string, error) {
	switch {
	case format == "" || raw == "":
		return raw, nil
	case format == "postal_code":
		v := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
		if len(v) <= 3 {
			return v, nil
		}
		return v[:3] + " " + v[3:], nil
	case strings.HasPrefix(format, "date:"):
		from, to, ok := strings.Cut(strings.TrimPrefix(format, "date:"), ">")
		if !ok {
			return "", fmt.Errorf("date format %q: want date:<from>><to>", format)
		}
		t, err := time.Parse(from, raw)
		if err != nil {
			return "", fmt.Errorf("parse %q as %s: %w", raw, from, err)
		}
		return t.Format(to), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// classify maps the result control's text to a verdict. Unrecognized text is an error.
func classify(text, winText, loseText string) domain.Result {
	t := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case winText != "" && strings.Contains(t, strings.ToUpper(winText)):
		return domain.Won
	case loseText != "" && strings.Contains(t, strings.ToUpper(loseText)):
		return domain.Lost
	default:
		return domain.Errored
	}
}

// screenshotName is unique per attempt and sorts by time.
func screenshotName(prefix, attemptID string, at time.Time) string {
	prefix = strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, prefix)
	id := attemptID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s.png", prefix, at.Format("20060102_150405"), id)
}
