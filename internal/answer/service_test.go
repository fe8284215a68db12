package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AbhiSondakar/NLIDB/internal/decode"
	"github.com/AbhiSondakar/NLIDB/internal/gateway"
	"github.com/AbhiSondakar/NLIDB/internal/nl2sql"
	"github.com/AbhiSondakar/NLIDB/internal/sqlguard"
)

type fakeSchema struct {
	description string
	err         error
	gotAllow    []string
}

func (f *fakeSchema) Describe(_ context.Context, allowList []string) (string, error) {
	f.gotAllow = allowList
	return f.description, f.err
}

type fakeGenerator struct {
	output nl2sql.Output
	err    error
	got    nl2sql.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req nl2sql.Request) (nl2sql.Output, error) {
	f.got = req
	return f.output, f.err
}

type fakeRunner struct {
	result gateway.Result
	err    error
	gotSQL string
}

func (f *fakeRunner) Execute(_ context.Context, sanitizedSQL string) (gateway.Result, error) {
	f.gotSQL = sanitizedSQL
	return f.result, f.err
}

func newService(schema *fakeSchema, gen *fakeGenerator, runner *fakeRunner) *Service {
	return &Service{
		Generator: gen,
		Schema:    schema,
		Runner:    runner,
		AllowList: []string{"orders"},
	}
}

func TestAskHappyPath(t *testing.T) {
	schema := &fakeSchema{description: "CREATE TABLE orders (id bigint)"}
	gen := &fakeGenerator{output: nl2sql.Output{
		Content:  `{"explanation": "counts orders", "sqlQuery": "SELECT count(*) FROM orders -- tally"}`,
		Provider: "openai",
		Model:    "gpt-5",
	}}
	runner := &fakeRunner{result: gateway.Result{
		Columns:  []string{"count"},
		Rows:     [][]any{{int64(7)}},
		Duration: 12 * time.Millisecond,
	}}

	svc := newService(schema, gen, runner)
	answer, err := svc.Ask(context.Background(), "how many orders?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Explanation != "counts orders" {
		t.Fatalf("Explanation = %q", answer.Explanation)
	}
	if answer.SanitizedSQL != "SELECT count(*) FROM orders" {
		t.Fatalf("SanitizedSQL = %q", answer.SanitizedSQL)
	}
	if runner.gotSQL != answer.SanitizedSQL {
		t.Fatalf("runner received %q, want sanitized form", runner.gotSQL)
	}
	if answer.Model != "gpt-5" || answer.Provider != "openai" {
		t.Fatalf("Provider/Model = %q/%q", answer.Provider, answer.Model)
	}
	if len(schema.gotAllow) != 1 || schema.gotAllow[0] != "orders" {
		t.Fatalf("allow list passed to schema = %v", schema.gotAllow)
	}
	if gen.got.Question != "how many orders?" {
		t.Fatalf("generator question = %q", gen.got.Question)
	}
	if gen.got.SchemaDescription != schema.description {
		t.Fatalf("generator schema = %q", gen.got.SchemaDescription)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := newService(&fakeSchema{}, &fakeGenerator{}, &fakeRunner{})
	_, err := svc.Ask(context.Background(), "   ")
	if !errors.Is(err, ErrQuestionRequired) {
		t.Fatalf("Ask() error = %v, want ErrQuestionRequired", err)
	}
}

func TestAskSchemaFailure(t *testing.T) {
	schema := &fakeSchema{err: errors.New("introspection failed")}
	svc := newService(schema, &fakeGenerator{}, &fakeRunner{})
	_, err := svc.Ask(context.Background(), "anything")
	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageSchema {
		t.Fatalf("Ask() error = %v, want schema stage failure", err)
	}
}

func TestAskGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	svc := newService(&fakeSchema{description: "x"}, gen, &fakeRunner{})
	_, err := svc.Ask(context.Background(), "anything")
	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageGenerate {
		t.Fatalf("Ask() error = %v, want generate stage failure", err)
	}
}

func TestAskDecodeFailureKeepsKind(t *testing.T) {
	gen := &fakeGenerator{output: nl2sql.Output{Content: "no json here"}}
	svc := newService(&fakeSchema{description: "x"}, gen, &fakeRunner{})
	_, err := svc.Ask(context.Background(), "anything")
	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageDecode {
		t.Fatalf("Ask() error = %v, want decode stage failure", err)
	}
	var dErr *decode.Error
	if !errors.As(err, &dErr) || dErr.Kind != decode.ErrNoJSONFound {
		t.Fatalf("decode error = %v, want ErrNoJSONFound", err)
	}
}

func TestAskValidationFailureKeepsCode(t *testing.T) {
	gen := &fakeGenerator{output: nl2sql.Output{
		Content: `{"explanation": "drops the table", "sqlQuery": "DROP TABLE orders"}`,
	}}
	svc := newService(&fakeSchema{description: "x"}, gen, &fakeRunner{})
	_, err := svc.Ask(context.Background(), "anything")
	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageValidate {
		t.Fatalf("Ask() error = %v, want validate stage failure", err)
	}
	var vErr *sqlguard.ValidationError
	if !errors.As(err, &vErr) || vErr.Code != sqlguard.CodeDisallowedCommand {
		t.Fatalf("validation error = %v, want CodeDisallowedCommand", err)
	}
}

func TestAskExecutionFailureKeepsKind(t *testing.T) {
	gen := &fakeGenerator{output: nl2sql.Output{
		Content: `{"explanation": "lists orders", "sqlQuery": "SELECT * FROM orders"}`,
	}}
	runner := &fakeRunner{err: &gateway.ExecError{Kind: gateway.FailureTimeout, Detail: "query canceled after deadline"}}
	svc := newService(&fakeSchema{description: "x"}, gen, runner)
	_, err := svc.Ask(context.Background(), "anything")
	var pErr *PipelineError
	if !errors.As(err, &pErr) || pErr.Stage != StageExecute {
		t.Fatalf("Ask() error = %v, want execute stage failure", err)
	}
	var execErr *gateway.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != gateway.FailureTimeout {
		t.Fatalf("execution error = %v, want FailureTimeout", err)
	}
}
