// Package nl2sql talks to the external generation capability. It sends the
// user question plus the schema description and hands back the raw model text.
// Decoding the structured {explanation, sqlQuery} object out of that text is
// deliberately not this package's job; the output is untrusted and goes
// through the response decoder and the SQL gate before anything touches the
// database.
package nl2sql

import "context"

type Request struct {
	Question          string
	SchemaDescription string
}

// Output carries the raw model text plus provenance for logging.
type Output struct {
	Content  string
	Provider string
	Model    string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Output, error)
}
