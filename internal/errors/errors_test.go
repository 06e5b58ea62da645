package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/paveg/ecomlake/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.TableError
		expected string
	}{
		{
			name:     "with column",
			err:      errors.NewColumnNotFoundError("DropNulls", "order_id"),
			expected: "DropNulls failed on column 'order_id': column does not exist",
		},
		{
			name:     "with table and column",
			err:      &errors.TableError{Op: "Sum", Table: "orders", Column: "price", Message: "bad"},
			expected: "Sum failed on orders.price: bad",
		},
		{
			name:     "without column",
			err:      errors.NewInvalidInputError("Join", "empty key"),
			expected: "Join failed: empty key",
		},
		{
			name:     "with cause",
			err:      errors.NewInternalError("WriteParquet", stderrors.New("disk full")),
			expected: "WriteParquet failed: internal error occurred: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTableError_Is(t *testing.T) {
	err := fmt.Errorf("loading: %w", errors.NewColumnNotFoundError("Join", "order_id"))

	assert.ErrorIs(t, err, &errors.TableError{Op: "Join"})
	assert.ErrorIs(t, err, errors.NewColumnNotFoundError("Join", "order_id"))
	assert.NotErrorIs(t, err, &errors.TableError{Op: "Sort"})
	assert.NotErrorIs(t, err, errors.NewColumnNotFoundError("Join", "price"))
}

func TestTableNotFound(t *testing.T) {
	err := errors.NewTableNotFoundError("Describe", "orders")
	assert.ErrorIs(t, err, errors.ErrTableNotFound)
	assert.Contains(t, err.Error(), "table 'orders'")
}

func TestStageError(t *testing.T) {
	require.NoError(t, errors.NewStageError("load", nil))

	cause := errors.NewColumnNotFoundError("Validate", "price")
	err := errors.NewStageError("load", cause)

	var stageErr *errors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "load", stageErr.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stage load: Validate failed on column 'price': column does not exist", err.Error())
}

func TestCommandError(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		err := &errors.CommandError{
			Args:     []string{"hdfs", "dfs", "-put", "a.csv", "/raw"},
			ExitCode: 1,
			Stderr:   "put: `/raw/a.csv': File exists\n",
		}
		assert.Equal(t, "command \"hdfs dfs -put a.csv /raw\" exited with status 1: put: `/raw/a.csv': File exists", err.Error())
		assert.NoError(t, err.Unwrap())
	})

	t.Run("start failure", func(t *testing.T) {
		cause := stderrors.New("executable file not found")
		err := &errors.CommandError{Args: []string{"hdfs"}, ExitCode: -1, Cause: cause}
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "executable file not found")
	})
}
