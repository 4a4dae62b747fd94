package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDbType(t *testing.T) {
	v, err := ParseDbType(`mysql`)
	require.NoError(t, err)
	require.Equal(t, DbTypeMysql, v)

	_, err = ParseDbType(`oracle`)
	require.Error(t, err)
}

func TestParseExtractType(t *testing.T) {
	v, err := ParseExtractType(`cdc`)
	require.NoError(t, err)
	require.Equal(t, ExtractTypeCdc, v)

	_, err = ParseExtractType(`bogus`)
	require.Error(t, err)
}

func TestParseSinkType(t *testing.T) {
	v, err := ParseSinkType(`merge`)
	require.NoError(t, err)
	require.Equal(t, SinkTypeMerge, v)

	_, err = ParseSinkType(`bogus`)
	require.Error(t, err)
}

func TestParseParallelType(t *testing.T) {
	v, err := ParseParallelType(`rdb_merge`)
	require.NoError(t, err)
	require.Equal(t, ParallelTypeRdbMerge, v)

	_, err = ParseParallelType(`bogus`)
	require.Error(t, err)
}

func TestParseConflictPolicy_failSafeCoercion(t *testing.T) {
	for _, tc := range [...]struct {
		Name  string
		Input string
		Want  ConflictPolicy
	}{
		{Name: `exact ignore`, Input: `ignore`, Want: ConflictPolicyIgnore},
		{Name: `exact interrupt`, Input: `interrupt`, Want: ConflictPolicyInterrupt},
		{Name: `empty string`, Input: ``, Want: ConflictPolicyInterrupt},
		{Name: `typo`, Input: `ignroe`, Want: ConflictPolicyInterrupt},
		{Name: `case mismatch`, Input: `Ignore`, Want: ConflictPolicyInterrupt},
		{Name: `unrelated value`, Input: `abort`, Want: ConflictPolicyInterrupt},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Want, ParseConflictPolicy(tc.Input))
		})
	}
}
