package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestCaseValidate(t *testing.T) {
	tests := []struct {
		name    string
		tc      TestCase
		wantErr string
	}{
		{
			name: "valid",
			tc:   TestCase{Name: "test_addition", SourceFile: "./math_test"},
		},
		{
			name:    "empty name",
			tc:      TestCase{SourceFile: "./math_test"},
			wantErr: "test name cannot be empty",
		},
		{
			name:    "whitespace in name",
			tc:      TestCase{Name: "test addition", SourceFile: "./math_test"},
			wantErr: "contains whitespace",
		},
		{
			name:    "tab in name",
			tc:      TestCase{Name: "test\taddition", SourceFile: "./math_test"},
			wantErr: "contains whitespace",
		},
		{
			name:    "missing source file",
			tc:      TestCase{Name: "test_addition"},
			wantErr: "has no source file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestTestCaseString(t *testing.T) {
	tc := TestCase{Name: "test_addition", SourceFile: "./math_test"}
	assert.Equal(t, "./math_test:test_addition", tc.String())
}

func TestTestResultPassed(t *testing.T) {
	assert.True(t, (&TestResult{Status: TestStatusPass}).Passed())
	assert.False(t, (&TestResult{Status: TestStatusFail}).Passed())
	assert.False(t, (&TestResult{Status: TestStatusError}).Passed())
}
