package money

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/shared"
)

func TestParseAcceptsNumericInputs(t *testing.T) {
	cases := map[string]any{
		"string":  "30.50",
		"padded":  "  30.5 ",
		"json":    json.Number("30.5"),
		"decimal": decimal.RequireFromString("30.500"),
		"float":   30.5,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := Parse(input)
			require.NoError(t, err)
			require.Equal(t, "30.50", Format(d))
		})
	}

	d, err := Parse(int64(7))
	require.NoError(t, err)
	require.Equal(t, "7.00", Format(d))
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, input := range []any{
		"abc", "", nil, struct{}{}, "1,5",
		"1e900000000", "1E-900000000", json.Number("9e99999999"), 1e300,
		decimal.New(1, 900000000), strings.Repeat("9", 65),
	} {
		_, err := Parse(input)
		require.Error(t, err)
		require.True(t, errors.Is(err, shared.ErrInvalidAmount), "input %v", input)
	}
}

func TestParseHugeExponentReturnsPromptly(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		_, err := Parse("1e900000000")
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, shared.ErrInvalidAmount)
	case <-time.After(time.Second):
		t.Fatal("parse did not return")
	}
}

func TestParseAcceptsModestExponent(t *testing.T) {
	d, err := Parse("1.5e3")
	require.NoError(t, err)
	require.Equal(t, "1500.00", Format(d))
}

func TestParseRoundsToScale(t *testing.T) {
	d, err := Parse("10.005")
	require.NoError(t, err)
	require.Equal(t, "10.01", Format(d))
}

func TestNoFloatDrift(t *testing.T) {
	total := Sum(MustParse("0.10"), MustParse("0.20"))
	require.True(t, total.Equal(MustParse("0.30")))
}

func TestNonNegative(t *testing.T) {
	d, err := NonNegative("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	_, err = NonNegative("-1")
	require.ErrorIs(t, err, shared.ErrNegativeAmount)

	_, err = NonNegative("x")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestPositive(t *testing.T) {
	_, err := Positive("0")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	_, err = Positive("-3")
	require.ErrorIs(t, err, shared.ErrNegativeAmount)
	d, err := Positive("45")
	require.NoError(t, err)
	require.Equal(t, "45.00", Format(d))
}

func TestClampZeroAndMul(t *testing.T) {
	require.True(t, ClampZero(MustParse("-4")).IsZero())
	require.Equal(t, "37.50", Format(Mul(MustParse("2.50"), 15)))
}
