package sqlguard

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAcceptsSimpleSelect(t *testing.T) {
	verdict, err := Validate("SELECT id, name FROM users LIMIT 5")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if verdict.SanitizedSQL != "SELECT id, name FROM users LIMIT 5" {
		t.Fatalf("SanitizedSQL = %q", verdict.SanitizedSQL)
	}
}

func TestValidateStripsCommentSmuggledStatement(t *testing.T) {
	verdict, err := Validate("SELECT * FROM t -- ; DROP TABLE t")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.Contains(verdict.SanitizedSQL, "DROP") {
		t.Fatalf("sanitized SQL still contains comment text: %q", verdict.SanitizedSQL)
	}
	if strings.Contains(verdict.SanitizedSQL, "--") {
		t.Fatalf("sanitized SQL still contains comment marker: %q", verdict.SanitizedSQL)
	}
}

func TestValidateRejectsDelete(t *testing.T) {
	_, err := Validate("DELETE FROM users")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v", err)
	}
	if validationErr.Code != CodeDisallowedCommand {
		t.Fatalf("Code = %q", validationErr.Code)
	}
	if validationErr.Token != "DELETE" {
		t.Fatalf("Token = %q", validationErr.Token)
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	inputs := []string{
		"SELECT 1; SELECT 2",
		"SELECT 1;\nSELECT 2;",
		"SELECT 1 /* comment */; SELECT 2",
		"SELECT 1; -- trailing\nSELECT 2",
		"SELECT ';'; SELECT 2",
	}
	for _, input := range inputs {
		_, err := Validate(input)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) || validationErr.Code != CodeMultipleStatements {
			t.Fatalf("Validate(%q) err = %v, want multiple_statements", input, err)
		}
	}
}

func TestValidateRejectsMutatingCommands(t *testing.T) {
	cases := []struct {
		input string
		want  Code
	}{
		{"INSERT INTO t VALUES (1)", CodeDisallowedCommand},
		{"UPDATE t SET a = 1", CodeDisallowedCommand},
		{"DROP TABLE t", CodeDisallowedCommand},
		{"TRUNCATE t", CodeDisallowedCommand},
		{"CREATE TABLE t (a int)", CodeDisallowedCommand},
		{"ALTER TABLE t ADD COLUMN b int", CodeDisallowedCommand},
		{"GRANT ALL ON t TO u", CodeDisallowedCommand},
		{"BEGIN", CodeDisallowedCommand},
		{"COMMIT", CodeDisallowedCommand},
		{"SET search_path TO x", CodeDisallowedCommand},
		{"VACUUM", CodeDisallowedCommand},
		{"FROBNICATE t", CodeDisallowedCommand},
		{"WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x", CodeForbiddenKeyword},
		{"EXPLAIN DELETE FROM t", CodeForbiddenKeyword},
	}
	for _, tc := range cases {
		_, err := Validate(tc.input)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("Validate(%q) err = %v", tc.input, err)
		}
		if validationErr.Code != tc.want {
			t.Fatalf("Validate(%q) code = %q, want %q", tc.input, validationErr.Code, tc.want)
		}
	}
}

func TestValidateRejectsEmptyAfterStripping(t *testing.T) {
	for _, input := range []string{"", "   ", "-- just a comment", "/* block */"} {
		_, err := Validate(input)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) || validationErr.Code != CodeEmptyQuery {
			t.Fatalf("Validate(%q) err = %v, want empty_query", input, err)
		}
	}
}

func TestValidateRejectsOnlySemicolons(t *testing.T) {
	_, err := Validate(";;")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Code != CodeUnparsableQuery {
		t.Fatalf("err = %v, want unparsable_query", err)
	}
}

func TestValidateStableUnderRevalidation(t *testing.T) {
	inputs := []string{
		"SELECT * FROM t -- tail comment",
		"/* head */ SELECT a, b FROM t WHERE c = 'x;y'",
		"WITH top AS (SELECT * FROM t LIMIT 10) SELECT * FROM top;",
	}
	for _, input := range inputs {
		first, err := Validate(input)
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", input, err)
		}
		second, err := Validate(first.SanitizedSQL)
		if err != nil {
			t.Fatalf("re-Validate(%q) error = %v", first.SanitizedSQL, err)
		}
		if first.SanitizedSQL != second.SanitizedSQL {
			t.Fatalf("re-validation changed SQL: %q -> %q", first.SanitizedSQL, second.SanitizedSQL)
		}
	}
}

func TestValidateKeywordsInsideLiteralsAreAllowed(t *testing.T) {
	inputs := []string{
		`SELECT * FROM audit WHERE action = 'DELETE'`,
		`SELECT "update" FROM settings`,
		`SELECT * FROM logs WHERE note = 'please DROP me a line'`,
	}
	for _, input := range inputs {
		if _, err := Validate(input); err != nil {
			t.Fatalf("Validate(%q) error = %v", input, err)
		}
	}
}

func TestValidateSemicolonInsideLiteralIsSingleStatement(t *testing.T) {
	verdict, err := Validate("SELECT * FROM t WHERE v = 'a;b'")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if verdict.SanitizedSQL != "SELECT * FROM t WHERE v = 'a;b'" {
		t.Fatalf("SanitizedSQL = %q", verdict.SanitizedSQL)
	}
}

func TestStripCommentsPreservesLiterals(t *testing.T) {
	input := `SELECT '-- not a comment', "col--name" /* gone */ FROM t`
	stripped := StripComments(input)
	if !strings.Contains(stripped, "'-- not a comment'") {
		t.Fatalf("literal altered: %q", stripped)
	}
	if !strings.Contains(stripped, `"col--name"`) {
		t.Fatalf("identifier altered: %q", stripped)
	}
	if strings.Contains(stripped, "gone") {
		t.Fatalf("block comment kept: %q", stripped)
	}
}

func TestStripCommentsHandlesNestedBlocks(t *testing.T) {
	stripped := StripComments("SELECT 1 /* outer /* inner */ still outer */ + 2")
	if strings.Contains(stripped, "outer") || strings.Contains(stripped, "inner") {
		t.Fatalf("nested block comment kept: %q", stripped)
	}
	if !strings.Contains(stripped, "+ 2") {
		t.Fatalf("trailing text lost: %q", stripped)
	}
}

func TestStripCommentsDollarQuotedBody(t *testing.T) {
	input := "SELECT $tag$ -- inside $tag$ FROM t"
	stripped := StripComments(input)
	if !strings.Contains(stripped, "-- inside") {
		t.Fatalf("dollar-quoted body altered: %q", stripped)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		input string
		want  CommandClass
	}{
		{"SELECT 1", ClassReadOnly},
		{"WITH x AS (SELECT 1) SELECT * FROM x", ClassReadOnly},
		{"INSERT INTO t VALUES (1)", ClassDataModifying},
		{"DROP TABLE t", ClassSchemaModifying},
		{"BEGIN", ClassTransaction},
		{"FROBNICATE", ClassUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.input); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
