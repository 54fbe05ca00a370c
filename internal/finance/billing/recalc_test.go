package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/money"
)

func TestRecalc(t *testing.T) {
	items := []LineItem{{Amount: "20.00"}, {Amount: "30.50"}}
	first := Recalc(items, money.MustParse("5.50"))
	second := Recalc(items, money.MustParse("5.50"))

	require.Equal(t, "50.50", money.Format(first.Subtotal))
	require.Equal(t, "45.00", money.Format(first.Total))
	require.True(t, first.Total.Equal(second.Total))
	require.Empty(t, first.Skipped)
}

func TestRecalcClampsAtZero(t *testing.T) {
	totals := Recalc([]LineItem{{Amount: "10"}}, money.MustParse("25"))
	require.Equal(t, "10.00", money.Format(totals.Subtotal))
	require.True(t, totals.Total.IsZero())
}

func TestRecalcSkipsMalformedLines(t *testing.T) {
	totals := Recalc([]LineItem{{Amount: "12.40"}, {Amount: "twelve"}, {Amount: ""}, {Amount: "0.1"}}, money.Zero)
	require.Equal(t, "12.50", money.Format(totals.Subtotal))
	require.Equal(t, []int{1, 2}, totals.Skipped)
}

func TestRecalcSkipsOutOfRangeExponent(t *testing.T) {
	var items []LineItem
	require.NoError(t, json.Unmarshal([]byte(`[{"amount":1e900000000},{"amount":"7.25"}]`), &items))
	totals := Recalc(items, money.Zero)
	require.Equal(t, "7.25", money.Format(totals.Subtotal))
	require.Equal(t, []int{0}, totals.Skipped)
}

func TestLineItemDecodesNumbersAndStrings(t *testing.T) {
	var items []LineItem
	err := json.Unmarshal([]byte(`[{"name":"a","amount":12.5},{"name":"b","amount":"7.25"},{"name":"c","amount":null}]`), &items)
	require.NoError(t, err)
	require.Equal(t, AmountText("12.5"), items[0].Amount)
	require.Equal(t, AmountText("7.25"), items[1].Amount)
	require.Equal(t, AmountText(""), items[2].Amount)

	totals := Recalc(items, money.Zero)
	require.Equal(t, "19.75", money.Format(totals.Subtotal))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	require.Equal(t, MethodCash, m)
	m, err = ParseMethod(" insurance ")
	require.NoError(t, err)
	require.Equal(t, MethodInsurance, m)
	_, err = ParseMethod("cheque")
	require.ErrorIs(t, err, ErrInvalidMethod)
}
