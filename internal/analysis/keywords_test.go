package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateKeywords(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		typ    InputType
		want   []int
	}{
		{"SymbolicOperatorsAndVariables", []string{"x", "=", "+", "cat"}, Symbolic, []int{0, 1, 2}},
		{"SymbolicFusedOperator", []string{"+x", "y=", "=m", "*/", "dog"}, Symbolic, []int{0, 1, 2}},
		{"SymbolicOperatorRunsDoNotMatch", []string{"--", "*/", "=+"}, Symbolic, nil},
		{"SymbolicMixed", []string{"-", "--", "", "求", "=x=", "xy"}, Symbolic, []int{0, 3, 4}},
		{"SymbolicFind", []string{"求", "P"}, Symbolic, []int{0}},
		{"SymbolicCaseSensitive", []string{"X", "A", "a"}, Symbolic, []int{2}},
		{"VerbalFind", []string{"求", "猫"}, Verbal, []int{0}},
		{"VerbalMultiChar", []string{"等于", "等", "于"}, Verbal, []int{0}},
		{"VerbalNoStripping", []string{"+加", "加"}, Verbal, []int{1}},
		{"VerbalIgnoresSymbols", []string{"x", "=", "+"}, Verbal, nil},
		{"DuplicatesPreserved", []string{"x", "cat", "x", "x"}, Symbolic, []int{0, 2, 3}},
		{"UnknownTag", []string{"x", "求", "="}, InputType("unknown_tag"), nil},
		{"EmptyTokens", nil, Symbolic, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocateKeywords(tt.tokens, tt.typ)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInputType(t *testing.T) {
	typ, err := ParseInputType("symbolic")
	require.NoError(t, err)
	assert.Equal(t, Symbolic, typ)

	typ, err = ParseInputType(" Verbal ")
	require.NoError(t, err)
	assert.Equal(t, Verbal, typ)

	_, err = ParseInputType("latex")
	assert.Error(t, err)
}
