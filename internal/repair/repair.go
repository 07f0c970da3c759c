// Package repair turns raw model text into a JSON object, tolerating the
// usual ways language models damage JSON: code fences, prose around the
// payload, bare keys, comments, trailing commas, raw control characters
// inside strings and responses cut off mid-array.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Object is a decoded JSON object. Numbers are json.Number so amounts keep
// their exact textual value.
type Object = map[string]any

const excerptRunes = 200

var (
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)(\s*:)`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	pyLiteralRe     = regexp.MustCompile(`\b(True|False|None|NaN)\b`)
)

// ParseModelJSON parses raw model output into an object. Tiers run in order
// and the first success wins:
//
//  1. strip code fences and parse directly
//  2. parse from the first '{' (prose before or after the payload)
//  3. segment-aware cleanup that never edits string contents
//  4. close a truncated response after its last complete member
//  5. Hjson
//  6. generic json-repair
//
// Valid JSON always returns from tier 1 unchanged. A top-level array is
// taken as the transaction list.
func ParseModelJSON(raw string) (Object, error) {
	text := strings.TrimSpace(stripCodeFences(raw))
	if text == "" {
		return nil, ErrEmptyResponse
	}

	obj, err := decodeStrict(text)
	if err == nil {
		return obj, nil
	}
	lastErr := err

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, malformed(lastErr, raw)
	}
	candidate := text[start:]
	if obj, err = decodeFirst(candidate); err == nil {
		return obj, nil
	}
	lastErr = err

	cleaned := cleanSegments(candidate)
	if obj, err = decodeFirst(cleaned); err == nil {
		return obj, nil
	}
	lastErr = err

	if closed, ok := closeTruncated(cleaned); ok {
		if obj, err = decodeStrict(closed); err == nil {
			return obj, nil
		}
		lastErr = err
	}

	if obj, err = decodeHJSON(cleaned); err == nil {
		return obj, nil
	}

	if repaired, rerr := jsonrepair.RepairJSON(cleaned); rerr == nil {
		if obj, err = decodeFirst(repaired); err == nil {
			return obj, nil
		}
		lastErr = err
	}

	return nil, malformed(lastErr, raw)
}

func malformed(err error, raw string) error {
	return &MalformedOutputError{Err: err, Excerpt: excerpt(raw)}
}

func excerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= excerptRunes {
		return raw
	}
	return string([]rune(raw)[:excerptRunes]) + "..."
}

// stripCodeFences returns the body of the first ``` fenced block, or the
// input unchanged when there is none.
func stripCodeFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// drop the language tag on the opening fence line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// decodeStrict parses exactly one JSON value with nothing but whitespace after it.
func decodeStrict(s string) (Object, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected content after JSON value at offset %d", dec.InputOffset())
	}
	return asObject(v)
}

// decodeFirst parses the first JSON value and ignores whatever follows it.
func decodeFirst(s string) (Object, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return asObject(v)
}

func decodeHJSON(s string) (Object, error) {
	var v any
	if err := hjson.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	// round-trip so numbers come back as json.Number like every other tier
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeStrict(string(data))
}

func asObject(v any) (Object, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		return Object{"transactions": t}, nil
	default:
		return nil, fmt.Errorf("top-level JSON value is %T, want object", v)
	}
}

// segment is a run of text either inside a string literal or outside all strings.
type segment struct {
	text   string
	quoted bool
	closed bool // quoted segments only: the closing quote was seen
	smart  bool // opened with a typographic quote
}

// splitSegments walks s tracking string state with escape parity. Typographic
// quotes outside strings open a string; inside a plain string they are content.
func splitSegments(s string) []segment {
	var segs []segment
	var buf strings.Builder
	runes := []rune(s)

	flush := func(seg segment) {
		seg.text = buf.String()
		buf.Reset()
		if seg.text != "" || seg.quoted {
			segs = append(segs, seg)
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '"' || isSmartQuote(r) {
			flush(segment{})
			cur := segment{quoted: true, smart: r != '"'}
			j := i + 1
			for ; j < len(runes); j++ {
				c := runes[j]
				if c == '\\' && j+1 < len(runes) {
					buf.WriteRune(c)
					buf.WriteRune(runes[j+1])
					j++
					continue
				}
				if (!cur.smart && c == '"') || (cur.smart && isSmartQuote(c)) {
					cur.closed = true
					break
				}
				buf.WriteRune(c)
			}
			flush(cur)
			i = j
			continue
		}
		buf.WriteRune(r)
	}
	flush(segment{})
	return segs
}

func isSmartQuote(r rune) bool {
	return r == '“' || r == '”' || r == '„'
}

// cleanSegments applies the structural fixes to text outside strings and
// escapes control characters inside strings.
func cleanSegments(s string) string {
	var out strings.Builder
	for _, seg := range splitSegments(s) {
		if seg.quoted {
			out.WriteByte('"')
			out.WriteString(escapeStringContent(seg.text))
			if seg.closed {
				out.WriteByte('"')
			}
			continue
		}
		out.WriteString(cleanStructural(seg.text))
	}
	return out.String()
}

func cleanStructural(s string) string {
	s = stripLineComments(s)
	s = blockCommentRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = pyLiteralRe.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case "True":
			return "true"
		case "False":
			return "false"
		}
		return "null"
	})
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

func stripLineComments(s string) string {
	for {
		idx := strings.Index(s, "//")
		if idx < 0 {
			return s
		}
		end := strings.IndexByte(s[idx:], '\n')
		if end < 0 {
			return s[:idx]
		}
		s = s[:idx] + s[idx+end:]
	}
}

// escapeStringContent makes the body of a string literal valid JSON: raw
// control characters become escapes, stray backslashes are doubled and bare
// double quotes (possible inside typographic strings) are escaped.
func escapeStringContent(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 < len(runes) && validEscape(runes, i+1) {
				b.WriteRune(r)
				b.WriteRune(runes[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r < 0x20:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validEscape(runes []rune, i int) bool {
	switch runes[i] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if i+4 >= len(runes) {
			return false
		}
		for _, h := range runes[i+1 : i+5] {
			if !isHex(h) {
				return false
			}
		}
		return true
	}
	return false
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// closeTruncated closes a response cut off before its root object ends. It
// cuts after the last complete top-level member or element of a top-level
// array, drops the partial tail and appends the closers still open at the
// cut.
func closeTruncated(s string) (string, bool) {
	if !strings.HasPrefix(s, "{") {
		return "", false
	}

	var stack, open []byte
	cut := -1
	mark := func(end int) {
		cut = end
		open = append(open[:0], stack...)
	}

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) <= 1 {
				// root closed: nothing was truncated
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 1 || (len(stack) == 2 && stack[1] == '[') {
				mark(i + 1)
			}
		case ',':
			if len(stack) == 1 {
				mark(i)
			}
		}
	}
	if cut < 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(s[:cut])
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String(), true
}
