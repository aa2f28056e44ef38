package reconciler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/xerrors"
)

func payload(overrides map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{
		"id":              float64(1001),
		"gateway":         "MBBank",
		"transactionDate": "2024-03-01 16:05:00",
		"accountNumber":   "0123456789",
		"content":         "TOPUP1709283600ABCD1234",
		"transferType":    "in",
		"transferAmount":  float64(100000),
		"accumulated":     float64(5000000),
		"referenceCode":   "FT1001",
	}
	for k, v := range overrides {
		if v == nil {
			delete(p, k)
			continue
		}
		p[k] = v
	}
	return p
}

func TestParseTransferIDs(t *testing.T) {
	cases := map[string]interface{}{
		"float":       float64(1001),
		"string":      "1001",
		"padded":      " 1001 ",
		"json number": json.Number("1001"),
		"int":         1001,
	}
	for name, id := range cases {
		tr, err := ParseTransfer(payload(map[string]interface{}{"id": id}))
		require.NoError(t, err, name)
		assert.Equal(t, int64(1001), tr.GatewayTxID, name)
	}
}

func TestParseTransferRejectsBadIDs(t *testing.T) {
	cases := map[string]interface{}{
		"fraction":    float64(1001.5),
		"text":        "abc",
		"zero":        float64(0),
		"negative":    "-5",
		"bool":        true,
		"json number": json.Number("10.5"),
	}
	for name, id := range cases {
		_, err := ParseTransfer(payload(map[string]interface{}{"id": id}))
		assert.True(t, xerrors.Is(err, xerrors.KindMalformedEvent), name)
	}

	missing := payload(nil)
	delete(missing, "id")
	_, err := ParseTransfer(missing)
	assert.True(t, xerrors.Is(err, xerrors.KindMalformedEvent))
}

func TestParseTransferAmounts(t *testing.T) {
	tr, err := ParseTransfer(payload(map[string]interface{}{"transferAmount": "30000"}))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30000).Equal(tr.Amount))

	tr, err = ParseTransfer(payload(map[string]interface{}{"transferAmount": json.Number("30000.50")}))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("30000.5").Equal(tr.Amount))

	tr, err = ParseTransfer(payload(map[string]interface{}{"accumulated": ""}))
	require.NoError(t, err)
	assert.True(t, tr.Accumulated.IsZero())

	for _, bad := range []interface{}{"-100", float64(-1), "12k", json.Number("abc"), []string{"1"}} {
		_, err := ParseTransfer(payload(map[string]interface{}{"transferAmount": bad}))
		assert.True(t, xerrors.Is(err, xerrors.KindMalformedEvent), "%v", bad)
	}
}

func TestParseTransferDates(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	tr, err := ParseTransfer(payload(nil))
	require.NoError(t, err)
	assert.True(t, want.Equal(tr.TransactionDate), tr.TransactionDate.String())

	tr, err = ParseTransfer(payload(map[string]interface{}{"transactionDate": "2024-03-01T16:05:00+07:00"}))
	require.NoError(t, err)
	assert.True(t, want.Equal(tr.TransactionDate), tr.TransactionDate.String())

	tr, err = ParseTransfer(payload(map[string]interface{}{"transactionDate": ""}))
	require.NoError(t, err)
	assert.True(t, tr.TransactionDate.IsZero())

	_, err = ParseTransfer(payload(map[string]interface{}{"transactionDate": "yesterday"}))
	assert.True(t, xerrors.Is(err, xerrors.KindMalformedEvent))
}

func TestTransferDirection(t *testing.T) {
	tr, err := ParseTransfer(payload(map[string]interface{}{"transferType": "IN"}))
	require.NoError(t, err)
	assert.True(t, tr.Incoming())
	bt := tr.BankTransaction()
	assert.True(t, decimal.NewFromInt(100000).Equal(bt.AmountIn))
	assert.True(t, bt.AmountOut.IsZero())
	assert.Equal(t, "FT1001", bt.ReferenceNumber)

	tr, err = ParseTransfer(payload(map[string]interface{}{"transferType": "out"}))
	require.NoError(t, err)
	assert.False(t, tr.Incoming())
	bt = tr.BankTransaction()
	assert.True(t, bt.AmountIn.IsZero())
	assert.True(t, decimal.NewFromInt(100000).Equal(bt.AmountOut))
}
