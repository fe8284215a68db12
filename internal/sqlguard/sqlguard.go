// Package sqlguard is the safety gate between untrusted generated SQL and the
// database. It normalizes, segments, classifies, and either accepts a single
// sanitized read-only statement or rejects the whole input with a typed reason.
// Validation is deterministic and pure; the same input always yields the same
// verdict. The grammar is pinned to PostgreSQL, which DuckDB also accepts.
package sqlguard

import (
	"fmt"
	"strings"
)

type Code string

const (
	CodeEmptyQuery         Code = "empty_query"
	CodeUnparsableQuery    Code = "unparsable_query"
	CodeMultipleStatements Code = "multiple_statements"
	CodeDisallowedCommand  Code = "disallowed_command"
	CodeForbiddenKeyword   Code = "forbidden_keyword"
)

type ValidationError struct {
	Code   Code
	Token  string
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Detail
}

// Verdict carries the comment-stripped single statement that passed every
// check. Downstream stages must execute SanitizedSQL, never the raw input.
type Verdict struct {
	SanitizedSQL string
}

type CommandClass string

const (
	ClassReadOnly        CommandClass = "read-only-retrieval"
	ClassDataModifying   CommandClass = "data-modifying"
	ClassSchemaModifying CommandClass = "schema-modifying"
	ClassTransaction     CommandClass = "transaction-or-session-control"
	ClassUnknown         CommandClass = "unknown"
)

// forbiddenKeywords is the defense-in-depth denylist scanned after command
// classification already accepted the statement. It intentionally overlaps
// with the classifier; the redundancy catches classifier blind spots such as
// mutating verbs smuggled into CTE bodies or EXPLAIN payloads.
var forbiddenKeywords = map[string]struct{}{
	"DROP": {}, "DELETE": {}, "INSERT": {}, "UPDATE": {}, "ALTER": {},
	"TRUNCATE": {}, "CREATE": {}, "GRANT": {}, "REVOKE": {}, "COMMIT": {},
	"ROLLBACK": {}, "SET": {}, "EXECUTE": {}, "CALL": {}, "ATTACH": {},
	"DETACH": {}, "IMPORT": {}, "REINDEX": {}, "RELEASE": {}, "SAVEPOINT": {},
	"VACUUM": {},
}

var commandClasses = map[string]CommandClass{
	"SELECT": ClassReadOnly, "WITH": ClassReadOnly, "VALUES": ClassReadOnly,
	"TABLE": ClassReadOnly, "SHOW": ClassReadOnly, "EXPLAIN": ClassReadOnly,

	"INSERT": ClassDataModifying, "UPDATE": ClassDataModifying,
	"DELETE": ClassDataModifying, "MERGE": ClassDataModifying,
	"COPY": ClassDataModifying,

	"CREATE": ClassSchemaModifying, "ALTER": ClassSchemaModifying,
	"DROP": ClassSchemaModifying, "TRUNCATE": ClassSchemaModifying,
	"COMMENT": ClassSchemaModifying, "REINDEX": ClassSchemaModifying,
	"VACUUM": ClassSchemaModifying,

	"BEGIN": ClassTransaction, "START": ClassTransaction,
	"COMMIT": ClassTransaction, "ROLLBACK": ClassTransaction,
	"SAVEPOINT": ClassTransaction, "RELEASE": ClassTransaction,
	"SET": ClassTransaction, "RESET": ClassTransaction,
}

// Validate runs the full gate over one untrusted SQL string. The entire input
// is rejected on any violation; there is no partial acceptance.
func Validate(raw string) (Verdict, error) {
	stripped := StripComments(raw)
	if strings.TrimSpace(stripped) == "" {
		return Verdict{}, &ValidationError{Code: CodeEmptyQuery, Detail: "query is empty after stripping comments"}
	}

	statements := splitStatements(stripped)
	if len(statements) == 0 {
		return Verdict{}, &ValidationError{Code: CodeUnparsableQuery, Detail: "no parsable statement found"}
	}
	if len(statements) > 1 {
		return Verdict{}, &ValidationError{
			Code:   CodeMultipleStatements,
			Detail: fmt.Sprintf("multiple statements are not allowed, found %d", len(statements)),
		}
	}

	statement := statements[0]
	command, class := classify(statement)
	if class != ClassReadOnly {
		return Verdict{}, &ValidationError{
			Code:   CodeDisallowedCommand,
			Token:  command,
			Detail: fmt.Sprintf("only read-only retrieval statements are allowed, found %s (%s)", command, class),
		}
	}

	if token, found := scanForbiddenKeyword(statement); found {
		return Verdict{}, &ValidationError{
			Code:   CodeForbiddenKeyword,
			Token:  token,
			Detail: fmt.Sprintf("forbidden keyword %s found", token),
		}
	}

	return Verdict{SanitizedSQL: statement}, nil
}

// Classify reports the command class of a statement's leading keyword.
func Classify(statement string) CommandClass {
	_, class := classify(statement)
	return class
}

func classify(statement string) (string, CommandClass) {
	command := leadingWord(statement)
	if command == "" {
		return "", ClassUnknown
	}
	class, ok := commandClasses[command]
	if !ok {
		return command, ClassUnknown
	}
	return command, class
}

func leadingWord(statement string) string {
	trimmed := strings.TrimLeft(statement, " \t\r\n(")
	end := 0
	for end < len(trimmed) && isWordByte(trimmed[end]) {
		end++
	}
	return strings.ToUpper(trimmed[:end])
}

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateDollarQuote
)

// StripComments removes -- line comments and /* */ block comments (nesting
// honored) without altering string literals, quoted identifiers, or
// dollar-quoted bodies. Each comment is replaced by a single space so that
// adjacent tokens never fuse.
func StripComments(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	state := stateNormal
	dollarTag := ""
	blockDepth := 0
	inLineComment := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
				out.WriteByte('\n')
			}
			continue
		}
		if blockDepth > 0 {
			if c == '/' && i+1 < len(input) && input[i+1] == '*' {
				blockDepth++
				i++
				continue
			}
			if c == '*' && i+1 < len(input) && input[i+1] == '/' {
				blockDepth--
				i++
				if blockDepth == 0 {
					out.WriteByte(' ')
				}
			}
			continue
		}

		switch state {
		case stateNormal:
			switch {
			case c == '-' && i+1 < len(input) && input[i+1] == '-':
				inLineComment = true
				out.WriteByte(' ')
				i++
			case c == '/' && i+1 < len(input) && input[i+1] == '*':
				blockDepth = 1
				i++
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateDoubleQuote
				out.WriteByte(c)
			case c == '$':
				if tag, ok := dollarTagAt(input, i); ok {
					state = stateDollarQuote
					dollarTag = tag
					out.WriteString(tag)
					i += len(tag) - 1
				} else {
					out.WriteByte(c)
				}
			default:
				out.WriteByte(c)
			}
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(input) && input[i+1] == '\'' {
					out.WriteByte('\'')
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			out.WriteByte(c)
			if c == '"' {
				if i+1 < len(input) && input[i+1] == '"' {
					out.WriteByte('"')
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDollarQuote:
			if c == '$' && strings.HasPrefix(input[i:], dollarTag) {
				out.WriteString(dollarTag)
				i += len(dollarTag) - 1
				state = stateNormal
				dollarTag = ""
			} else {
				out.WriteByte(c)
			}
		}
	}
	return out.String()
}

// splitStatements segments comment-free SQL on top-level semicolons, honoring
// quote and dollar-quote nesting. Empty segments (stray semicolons, trailing
// terminators) are dropped.
func splitStatements(input string) []string {
	var statements []string
	var current strings.Builder

	state := stateNormal
	dollarTag := ""

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			statements = append(statements, trimmed)
		}
		current.Reset()
	}

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch state {
		case stateNormal:
			switch {
			case c == ';':
				flush()
				continue
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '$':
				if tag, ok := dollarTagAt(input, i); ok {
					state = stateDollarQuote
					dollarTag = tag
					current.WriteString(tag)
					i += len(tag) - 1
					continue
				}
			}
			current.WriteByte(c)
		case stateSingleQuote:
			current.WriteByte(c)
			if c == '\'' {
				if i+1 < len(input) && input[i+1] == '\'' {
					current.WriteByte('\'')
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			current.WriteByte(c)
			if c == '"' {
				if i+1 < len(input) && input[i+1] == '"' {
					current.WriteByte('"')
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDollarQuote:
			if c == '$' && strings.HasPrefix(input[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				state = stateNormal
				dollarTag = ""
			} else {
				current.WriteByte(c)
			}
		}
	}
	flush()
	return statements
}

// scanForbiddenKeyword walks every lexical keyword outside quoted regions and
// reports the first denylist hit. Quoted identifiers and string literals are
// data, not keywords, and are skipped.
func scanForbiddenKeyword(statement string) (string, bool) {
	state := stateNormal
	dollarTag := ""

	for i := 0; i < len(statement); i++ {
		c := statement[i]
		switch state {
		case stateNormal:
			switch {
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '$':
				if tag, ok := dollarTagAt(statement, i); ok {
					state = stateDollarQuote
					dollarTag = tag
					i += len(tag) - 1
				}
			case isWordStart(c):
				end := i
				for end < len(statement) && isWordByte(statement[end]) {
					end++
				}
				word := strings.ToUpper(statement[i:end])
				if _, forbidden := forbiddenKeywords[word]; forbidden {
					return word, true
				}
				i = end - 1
			}
		case stateSingleQuote:
			if c == '\'' {
				if i+1 < len(statement) && statement[i+1] == '\'' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			if c == '"' {
				if i+1 < len(statement) && statement[i+1] == '"' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDollarQuote:
			if c == '$' && strings.HasPrefix(statement[i:], dollarTag) {
				i += len(dollarTag) - 1
				state = stateNormal
				dollarTag = ""
			}
		}
	}
	return "", false
}

// dollarTagAt reports the full $tag$ delimiter starting at offset, when one is
// present. Plain positional parameters like $1 are not delimiters.
func dollarTagAt(input string, offset int) (string, bool) {
	if offset >= len(input) || input[offset] != '$' {
		return "", false
	}
	end := offset + 1
	for end < len(input) && input[end] != '$' {
		c := input[end]
		if !isWordByte(c) || (c >= '0' && c <= '9' && end == offset+1) {
			return "", false
		}
		end++
	}
	if end >= len(input) {
		return "", false
	}
	return input[offset : end+1], true
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
