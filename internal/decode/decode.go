// Package decode extracts the structured {explanation, sqlQuery} object from
// raw model output. Generation text is adversarial by nature: the object may be
// wrapped in markdown fences, surrounded by prose, or duplicated. Extraction is
// an ordered list of strategies; the first one that yields an object carrying
// both required fields wins.
package decode

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	fieldExplanation = "explanation"
	fieldSQLQuery    = "sqlQuery"
)

type Response struct {
	Explanation string `json:"explanation"`
	SQLQuery    string `json:"sqlQuery"`
}

type ErrorKind string

const (
	ErrNoJSONFound   ErrorKind = "no_json_found"
	ErrMalformedJSON ErrorKind = "malformed_json"
	ErrMissingField  ErrorKind = "missing_field"
)

type Error struct {
	Kind  ErrorKind
	Field string
}

func (e *Error) Error() string {
	if e.Kind == ErrMissingField {
		return fmt.Sprintf("decode: response object is missing field %q", e.Field)
	}
	return "decode: " + string(e.Kind)
}

// Extract decodes model output into a Response. It is a pure function: no
// side effects, and identical input always yields an identical result.
func Extract(raw string) (Response, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Response{}, &Error{Kind: ErrNoJSONFound}
	}

	// Tracks the most specific failure seen across strategies so the caller
	// learns whether JSON existed at all, parsed at all, or lacked a field.
	best := &Error{Kind: ErrNoJSONFound}

	candidates := []string{stripOuterFence(trimmed)}
	candidates = append(candidates, fenceInteriors(trimmed)...)
	if fragment, ok := balancedFragment(trimmed); ok {
		candidates = append(candidates, fragment)
	}
	if first, last := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); first != -1 && last > first {
		candidates = append(candidates, trimmed[first:last+1])
	}

	for _, candidate := range candidates {
		response, err := parseObject(candidate)
		if err == nil {
			return response, nil
		}
		promote(best, err)
	}
	return Response{}, best
}

// parseObject accepts a candidate only when it is a JSON object holding both
// required fields as non-empty strings. Fragments missing a field are skipped
// by the caller, never merged with another fragment.
func parseObject(candidate string) (Response, *Error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !strings.HasPrefix(candidate, "{") {
		return Response{}, &Error{Kind: ErrNoJSONFound}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return Response{}, &Error{Kind: ErrMalformedJSON}
	}
	for _, name := range []string{fieldExplanation, fieldSQLQuery} {
		if _, ok := fields[name]; !ok {
			return Response{}, &Error{Kind: ErrMissingField, Field: name}
		}
	}

	var response Response
	if err := json.Unmarshal([]byte(candidate), &response); err != nil {
		return Response{}, &Error{Kind: ErrMalformedJSON}
	}
	if strings.TrimSpace(response.Explanation) == "" {
		return Response{}, &Error{Kind: ErrMissingField, Field: fieldExplanation}
	}
	if strings.TrimSpace(response.SQLQuery) == "" {
		return Response{}, &Error{Kind: ErrMissingField, Field: fieldSQLQuery}
	}
	return response, nil
}

// promote keeps the most informative error: missing_field beats malformed_json
// beats no_json_found.
func promote(best *Error, err *Error) {
	rank := map[ErrorKind]int{ErrNoJSONFound: 0, ErrMalformedJSON: 1, ErrMissingField: 2}
	if rank[err.Kind] > rank[best.Kind] {
		best.Kind = err.Kind
		best.Field = err.Field
	}
}

// stripOuterFence removes a markdown fence when it wraps the whole payload,
// including an optional language tag on the opening line.
func stripOuterFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	if newline := strings.IndexByte(inner, '\n'); newline != -1 {
		tag := strings.TrimSpace(inner[:newline])
		if tag == "" || isFenceTag(tag) {
			inner = inner[newline+1:]
		}
	}
	return strings.TrimSpace(inner)
}

// fenceInteriors returns the interior of every fenced block in order of
// appearance, for outputs that mix prose with one or more fenced objects.
func fenceInteriors(text string) []string {
	var interiors []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open == -1 {
			return interiors
		}
		rest = rest[open+3:]
		if newline := strings.IndexByte(rest, '\n'); newline != -1 && isFenceTag(strings.TrimSpace(rest[:newline])) {
			rest = rest[newline+1:]
		}
		closing := strings.Index(rest, "```")
		if closing == -1 {
			return interiors
		}
		interiors = append(interiors, strings.TrimSpace(rest[:closing]))
		rest = rest[closing+3:]
	}
}

func isFenceTag(tag string) bool {
	if tag == "" {
		return true
	}
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// balancedFragment scans for the first brace-balanced fragment that mentions
// both required field names. Brace counting skips JSON string literals so
// braces inside explanations do not break the balance.
func balancedFragment(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case !inString && c == '{':
				depth++
			case !inString && c == '}':
				depth--
				if depth == 0 {
					fragment := text[start : i+1]
					if strings.Contains(fragment, `"`+fieldExplanation+`"`) && strings.Contains(fragment, `"`+fieldSQLQuery+`"`) {
						return fragment, true
					}
					i = len(text)
				}
			}
		}
	}
	return "", false
}
