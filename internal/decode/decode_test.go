package decode

import (
	"errors"
	"testing"
)

func TestExtractPlainObject(t *testing.T) {
	response, err := Extract(`{"explanation":"count users","sqlQuery":"SELECT count(*) FROM users"}`)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if response.SQLQuery != "SELECT count(*) FROM users" {
		t.Fatalf("SQLQuery = %q", response.SQLQuery)
	}
	if response.Explanation != "count users" {
		t.Fatalf("Explanation = %q", response.Explanation)
	}
}

func TestExtractFencedWithProseMatchesUnwrapped(t *testing.T) {
	object := `{"explanation":"count users","sqlQuery":"SELECT count(*) FROM users"}`
	wrapped := "Here:\n```json\n" + object + "\n```"

	fromWrapped, err := Extract(wrapped)
	if err != nil {
		t.Fatalf("Extract(wrapped) error = %v", err)
	}
	fromPlain, err := Extract(object)
	if err != nil {
		t.Fatalf("Extract(plain) error = %v", err)
	}
	if fromWrapped != fromPlain {
		t.Fatalf("wrapped = %+v, plain = %+v", fromWrapped, fromPlain)
	}
}

func TestExtractWholeFencedBlock(t *testing.T) {
	response, err := Extract("```json\n{\"explanation\":\"one row\",\"sqlQuery\":\"SELECT 1\"}\n```")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if response.SQLQuery != "SELECT 1" {
		t.Fatalf("SQLQuery = %q", response.SQLQuery)
	}
}

func TestExtractBracesWithSurroundingProse(t *testing.T) {
	raw := `Sure! The query below answers the question.
{"explanation":"latest signups","sqlQuery":"SELECT * FROM signups ORDER BY created_at DESC LIMIT 10"}
Let me know if you need anything else.`
	response, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if response.Explanation != "latest signups" {
		t.Fatalf("Explanation = %q", response.Explanation)
	}
}

func TestExtractSkipsFragmentMissingField(t *testing.T) {
	raw := `{"explanation":"partial only"} and then {"explanation":"done","sqlQuery":"SELECT 1"}`
	response, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if response.Explanation != "done" {
		t.Fatalf("Explanation = %q", response.Explanation)
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	raw := `prefix {"explanation":"uses {braces} inside","sqlQuery":"SELECT '{'"} suffix`
	response, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if response.SQLQuery != "SELECT '{'" {
		t.Fatalf("SQLQuery = %q", response.SQLQuery)
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("I cannot answer that question.")
	var decodeErr *Error
	if !errors.As(err, &decodeErr) || decodeErr.Kind != ErrNoJSONFound {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	_, err := Extract(`{"explanation": "broken", "sqlQuery": `)
	var decodeErr *Error
	if !errors.As(err, &decodeErr) || decodeErr.Kind != ErrMalformedJSON {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractMissingFieldReported(t *testing.T) {
	_, err := Extract(`{"explanation":"no sql here"}`)
	var decodeErr *Error
	if !errors.As(err, &decodeErr) || decodeErr.Kind != ErrMissingField {
		t.Fatalf("err = %v", err)
	}
	if decodeErr.Field != "sqlQuery" {
		t.Fatalf("Field = %q", decodeErr.Field)
	}
}

func TestExtractEmptyFieldRejected(t *testing.T) {
	_, err := Extract(`{"explanation":"","sqlQuery":"SELECT 1"}`)
	var decodeErr *Error
	if !errors.As(err, &decodeErr) || decodeErr.Kind != ErrMissingField {
		t.Fatalf("err = %v", err)
	}
	if decodeErr.Field != "explanation" {
		t.Fatalf("Field = %q", decodeErr.Field)
	}
}
