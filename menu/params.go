package menu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// StatusProvider is an opaque key→value source consulted read-only once
// per render/context-update pass.
type StatusProvider interface {
	GetStatus(now time.Time) map[string]interface{}
}

type StatusFunc func(now time.Time) map[string]interface{}

func (f StatusFunc) GetStatus(now time.Time) map[string]interface{} { return f(now) }

// Params is the snapshot all predicates and templates evaluate against.
type Params map[string]map[string]interface{}

func (p Params) Lookup(path string) (interface{}, bool) {
	i := strings.IndexByte(path, '.')
	if i <= 0 || i == len(path)-1 {
		return nil, false
	}
	sub, ok := p[path[:i]]
	if !ok {
		return nil, false
	}
	v, ok := sub[path[i+1:]]
	return v, ok
}

// Renderer computes display/script text from a template and positional
// values. An external collaborator; failures are never fatal.
type Renderer interface {
	Render(template string, values []interface{}) (string, error)
}

// FormatRenderer substitutes `{N}` and `{N:%verb}` placeholders,
// e.g. "Fan: {0:%3.0f}%%".
type FormatRenderer struct{}

func (FormatRenderer) Render(template string, values []interface{}) (string, error) {
	if !strings.ContainsRune(template, '{') {
		return strings.ReplaceAll(template, "%%", "%"), nil
	}
	var b strings.Builder
	b.Grow(len(template))
	s := template
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:open])
		s = s[open+1:]
		close_ := strings.IndexByte(s, '}')
		if close_ < 0 {
			return "", errors.NotValidf("template '%s': unterminated placeholder", template)
		}
		ph := s[:close_]
		s = s[close_+1:]

		verb := "%v"
		if colon := strings.IndexByte(ph, ':'); colon >= 0 {
			verb = ph[colon+1:]
			ph = ph[:colon]
		}
		idx, err := strconv.Atoi(ph)
		if err != nil {
			return "", errors.NotValidf("template '%s': placeholder index '%s'", template, ph)
		}
		if idx < 0 || idx >= len(values) {
			return "", errors.NotValidf("template '%s': index %d out of %d values", template, idx, len(values))
		}
		b.WriteString(fmt.Sprintf(verb, values[idx]))
	}
	return strings.ReplaceAll(b.String(), "%%", "%"), nil
}

// truthy maps parameter values to predicate booleans. nil is false.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func parseBoolLiteral(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "1", "y", "yes", "t", "true", "on":
		return true, true
	case "0", "n", "no", "f", "false", "off":
		return false, true
	}
	return false, false
}

// linesAsList splits a multi-line config value, dropping blanks.
func linesAsList(value string) []string {
	out := []string(nil)
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func wordsAsList(value, sep string) []string {
	out := []string(nil)
	for _, w := range strings.Split(value, sep) {
		w = strings.TrimSpace(w)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// parsePredicate: lines are OR'd, comma words within a line are AND'd.
func parsePredicate(value string) [][]string {
	lines := linesAsList(value)
	out := make([][]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, wordsAsList(line, ","))
	}
	return out
}
