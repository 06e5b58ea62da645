package common_test

import (
	"testing"

	"github.com/paveg/ecomlake/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
		wantErr  bool
	}{
		{"int64", int64(3), 3, false},
		{"int32", int32(-2), -2, false},
		{"float64", 99.5, 99.5, false},
		{"padded string", " 100.0 ", 100, false},
		{"bool", false, 0, false},
		{"bad string", "n/a", 0, true},
		{"unsupported", struct{}{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := common.ToFloat64(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}
