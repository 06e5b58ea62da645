// Package validation checks loaded tables against the columns later stages
// depend on, so a malformed input fails at load time with a clear message
// instead of deep inside a join or aggregation.
package validation

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/paveg/ecomlake/internal/errors"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
}

// ColumnSet is a ColumnProvider over a plain list of column names, for
// tables whose schema is only known by description.
type ColumnSet []string

// HasColumn reports whether name is in the set.
func (c ColumnSet) HasColumn(name string) bool {
	for _, col := range c {
		if col == name {
			return true
		}
	}
	return false
}

// Columns returns the names in order.
func (c ColumnSet) Columns() []string {
	return []string(c)
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		df:      df,
		columns: columns,
		op:      op,
	}
}

// Validate checks that every column exists. A single missing column is
// reported as a column-not-found error; several are reported together.
func (v *ColumnValidator) Validate() error {
	var missing []string
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return errors.NewColumnNotFoundError(v.op, missing[0])
	default:
		return errors.NewValidationError(v.op, "",
			fmt.Sprintf("missing required columns [%s]", strings.Join(missing, ", ")))
	}
}

// CompoundValidator runs validators in order. By default it stops at the
// first failure; a joined validator runs every one and joins their errors.
type CompoundValidator struct {
	validators []Validator
	joinAll    bool
}

// NewCompoundValidator creates a validator that runs multiple validators
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{validators: validators}
}

// NewJoinedValidator creates a validator that reports every failure at once.
func NewJoinedValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{validators: validators, joinAll: true}
}

// Validate runs the validators and returns the first error, or all of them
// joined for a joined validator.
func (v *CompoundValidator) Validate() error {
	var errs []error
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			if !v.joinAll {
				return err
			}
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}
