package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecimal_Cmp(t *testing.T) {
	a := NewDecimal(1, 2)  // 0.5
	b := NewDecimal(3, 4)  // 0.75
	require.Equal(t, -1, a.Cmp(b))
	require.Equal(t, 1, b.Cmp(a))
	require.Equal(t, 0, a.Cmp(NewDecimal(2, 4)))
}

func TestDecimal_Cmp_nilSafe(t *testing.T) {
	var zero Decimal
	require.Equal(t, 0, zero.Cmp(zero))
	require.Equal(t, -1, zero.Cmp(NewDecimal(1, 1)))
	require.Equal(t, 1, NewDecimal(1, 1).Cmp(zero))
}

func TestDecimal_Round_halfToEven(t *testing.T) {
	for _, tc := range [...]struct {
		Name string
		Rat  Decimal
		Prec int
		Want string
	}{
		{Name: `round down`, Rat: mustDecimal(t, `0.124`), Prec: 2, Want: `0.12`},
		{Name: `round up`, Rat: mustDecimal(t, `0.126`), Prec: 2, Want: `0.13`},
		{Name: `half to even down`, Rat: mustDecimal(t, `0.125`), Prec: 2, Want: `0.12`},
		{Name: `half to even up`, Rat: mustDecimal(t, `0.135`), Prec: 2, Want: `0.14`},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			got := tc.Rat.Round(tc.Prec)
			require.Equal(t, tc.Want, got.FloatString(tc.Prec))
		})
	}
}

func TestParseDecimal_invalid(t *testing.T) {
	_, err := ParseDecimal(`not-a-number`)
	require.Error(t, err)
}

func mustDecimal(t *testing.T, s string) Decimal {
	t.Helper()
	d, err := ParseDecimal(s)
	require.NoError(t, err)
	return d
}
