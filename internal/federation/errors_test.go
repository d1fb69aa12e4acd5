package federation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExecutionErrorSuggestsNormalizedName(t *testing.T) {
	maps := []map[string]string{{"Revenue ($)": "revenue", "Customer Name": "customer_name"}}

	fromSQLite := newExecutionError("q", errors.New("execute query: no such column: Customer_Name"), maps)
	assert.Equal(t, "Please use 'customer_name' instead of 'Customer_Name'", fromSQLite.Error())
	assert.Equal(t, "customer_name", fromSQLite.Suggestion)

	fromDuckDB := newExecutionError("q", errors.New(`Binder Error: Referenced column "Revenue" not found in FROM clause!`), maps)
	assert.Equal(t, "Please use 'revenue' instead of 'Revenue'", fromDuckDB.Error())
}

func TestNewExecutionErrorKeepsEngineMessage(t *testing.T) {
	maps := []map[string]string{{"Revenue ($)": "revenue"}}
	cause := errors.New("no such column: margin")
	err := newExecutionError("q", cause, maps)
	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)

	syntax := newExecutionError("q", errors.New(`syntax error near "FORM"`), maps)
	assert.Empty(t, syntax.Suggestion)
}
