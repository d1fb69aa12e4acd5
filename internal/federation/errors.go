package federation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tablechat/tablechat/internal/ident"
)

// ErrUnknownTable is returned when a requested ephemeral table is not
// registered or has expired.
var ErrUnknownTable = errors.New("unknown table")

// ExecutionError is a failure of the transient engine to run the rewritten
// statement. It is the caller's fault and is never retried.
type ExecutionError struct {
	SQL        string
	Message    string
	Suggestion string
	Err        error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// StoreError is a failure to read a persistent table.
type StoreError struct {
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("read persistent table %q: %v", e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

var unknownColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no such column: ([^\s]+)`),
	regexp.MustCompile(`(?i)referenced column "?([^"\s]+)"? not found`),
}

// newExecutionError turns an engine failure into an ExecutionError, adding a
// column-name suggestion when the failure names an unknown column.
func newExecutionError(sqlText string, err error, columnMaps []map[string]string) *ExecutionError {
	out := &ExecutionError{SQL: sqlText, Message: err.Error(), Err: err}
	bad := unknownColumn(err.Error())
	if bad == "" {
		return out
	}
	if suggestion, ok := suggestColumn(bad, columnMaps); ok {
		out.Suggestion = suggestion
		out.Message = fmt.Sprintf("Please use '%s' instead of '%s'", suggestion, bad)
	}
	return out
}

func unknownColumn(message string) string {
	for _, pattern := range unknownColumnPatterns {
		if match := pattern.FindStringSubmatch(message); len(match) == 2 {
			name := strings.Trim(match[1], `"'`)
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = name[dot+1:]
			}
			return name
		}
	}
	return ""
}

func suggestColumn(bad string, columnMaps []map[string]string) (string, bool) {
	for _, columnMap := range columnMaps {
		if normalized, ok := columnMap[bad]; ok {
			return normalized, true
		}
	}
	candidate := ident.Normalize(bad)
	for _, columnMap := range columnMaps {
		for _, normalized := range columnMap {
			if normalized == candidate {
				return normalized, true
			}
		}
	}
	return "", false
}
