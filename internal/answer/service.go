// Package answer runs the question-to-result pipeline: describe the schema,
// generate SQL, decode the model response, validate it, and execute it against
// the data database. Each stage failure is reported with the stage attached so
// callers can map it to a stable error code.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AbhiSondakar/NLIDB/internal/decode"
	"github.com/AbhiSondakar/NLIDB/internal/gateway"
	"github.com/AbhiSondakar/NLIDB/internal/nl2sql"
	"github.com/AbhiSondakar/NLIDB/internal/observability"
	"github.com/AbhiSondakar/NLIDB/internal/sqlguard"
)

type Stage string

const (
	StageSchema   Stage = "schema"
	StageGenerate Stage = "generate"
	StageDecode   Stage = "decode"
	StageValidate Stage = "validate"
	StageExecute  Stage = "execute"
)

// PipelineError wraps a stage failure. The wrapped error keeps its concrete
// type, so errors.As still reaches decode.Error, sqlguard.ValidationError and
// gateway.ExecError through it.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

var ErrQuestionRequired = errors.New("question is required")

type SchemaSource interface {
	Describe(ctx context.Context, allowList []string) (string, error)
}

type Runner interface {
	Execute(ctx context.Context, sanitizedSQL string) (gateway.Result, error)
}

type Service struct {
	Generator nl2sql.Generator
	Schema    SchemaSource
	Runner    Runner
	AllowList []string
	Logger    *slog.Logger
}

type Answer struct {
	Explanation  string
	SanitizedSQL string
	Result       gateway.Result
	Provider     string
	Model        string
}

func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, &PipelineError{Stage: StageGenerate, Err: ErrQuestionRequired}
	}

	description, err := s.Schema.Describe(ctx, s.AllowList)
	if err != nil {
		observability.ObserveAnswerOutcome("schema_failed")
		return Answer{}, &PipelineError{Stage: StageSchema, Err: err}
	}

	output, err := s.Generator.Generate(ctx, nl2sql.Request{
		Question:          question,
		SchemaDescription: description,
	})
	if err != nil {
		observability.ObserveAnswerOutcome("generation_failed")
		return Answer{}, &PipelineError{Stage: StageGenerate, Err: err}
	}

	response, err := decode.Extract(output.Content)
	if err != nil {
		observability.ObserveAnswerOutcome("decode_failed")
		if s.Logger != nil {
			s.Logger.WarnContext(ctx, "model response could not be decoded",
				slog.String("model", output.Model),
				slog.Any("error", err),
			)
		}
		return Answer{}, &PipelineError{Stage: StageDecode, Err: err}
	}

	verdict, err := sqlguard.Validate(response.SQLQuery)
	if err != nil {
		observability.ObserveAnswerOutcome("validation_rejected")
		var vErr *sqlguard.ValidationError
		if errors.As(err, &vErr) {
			observability.ObserveValidationRejection(string(vErr.Code))
		}
		if s.Logger != nil {
			s.Logger.WarnContext(ctx, "generated query rejected",
				slog.String("model", output.Model),
				slog.Any("error", err),
			)
		}
		return Answer{}, &PipelineError{Stage: StageValidate, Err: err}
	}

	result, err := s.Runner.Execute(ctx, verdict.SanitizedSQL)
	if err != nil {
		observability.ObserveAnswerOutcome("execution_failed")
		var execErr *gateway.ExecError
		if errors.As(err, &execErr) {
			observability.ObserveExecutionFailure(string(execErr.Kind))
		}
		return Answer{}, &PipelineError{Stage: StageExecute, Err: err}
	}

	observability.ObserveAnswerOutcome("ok")
	observability.ObserveQueryResult(len(result.Rows), result.Truncated, result.Duration)
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "question answered",
			slog.String("model", output.Model),
			slog.Int("rows", len(result.Rows)),
			slog.Bool("truncated", result.Truncated),
			slog.Duration("duration", result.Duration),
		)
	}

	return Answer{
		Explanation:  response.Explanation,
		SanitizedSQL: verdict.SanitizedSQL,
		Result:       result,
		Provider:     output.Provider,
		Model:        output.Model,
	}, nil
}
