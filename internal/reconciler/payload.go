package reconciler

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
)

// gatewayTimeLayout is how the gateway formats transactionDate, in Vietnam time.
const gatewayTimeLayout = "2006-01-02 15:04:05"

var vietnam = time.FixedZone("ICT", 7*60*60)

// Transfer is a parsed gateway notification.
type Transfer struct {
	GatewayTxID     int64
	Gateway         string
	TransactionDate time.Time
	AccountNumber   string
	SubAccount      string
	Code            string
	Content         string
	Description     string
	TransferType    string
	Amount          decimal.Decimal
	Accumulated     decimal.Decimal
	ReferenceCode   string
}

// Incoming reports whether money was received.
func (t *Transfer) Incoming() bool {
	return strings.EqualFold(t.TransferType, models.TransferIn)
}

// BankTransaction converts t into its storage row.
func (t *Transfer) BankTransaction() *models.BankTransaction {
	bt := &models.BankTransaction{
		ID:              t.GatewayTxID,
		Gateway:         t.Gateway,
		TransactionDate: t.TransactionDate,
		AccountNumber:   t.AccountNumber,
		SubAccount:      t.SubAccount,
		Accumulated:     t.Accumulated,
		Code:            t.Code,
		Content:         t.Content,
		ReferenceNumber: t.ReferenceCode,
		Description:     t.Description,
		AmountIn:        decimal.Zero,
		AmountOut:       decimal.Zero,
	}
	if t.Incoming() {
		bt.AmountIn = t.Amount
	} else {
		bt.AmountOut = t.Amount
	}
	return bt
}

// GatewayTxID extracts the gateway transaction id from a raw payload.
func GatewayTxID(payload map[string]interface{}) (int64, error) {
	raw, ok := payload["id"]
	if !ok || raw == nil {
		return 0, xerrors.New(xerrors.KindMalformedEvent, "payload has no transaction id")
	}
	id, err := toInt64(raw)
	if err != nil || id <= 0 {
		return 0, xerrors.New(xerrors.KindMalformedEvent, fmt.Sprintf("invalid transaction id %v", raw))
	}
	return id, nil
}

// ParseTransfer reads a gateway payload. Numeric fields may arrive as numbers or strings.
func ParseTransfer(payload map[string]interface{}) (*Transfer, error) {
	id, err := GatewayTxID(payload)
	if err != nil {
		return nil, err
	}
	t := &Transfer{
		GatewayTxID:   id,
		Gateway:       str(payload, "gateway"),
		AccountNumber: str(payload, "accountNumber"),
		SubAccount:    str(payload, "subAccount"),
		Code:          str(payload, "code"),
		Content:       str(payload, "content"),
		Description:   str(payload, "description"),
		TransferType:  strings.ToLower(str(payload, "transferType")),
		ReferenceCode: str(payload, "referenceCode"),
	}
	if t.Amount, err = amount(payload, "transferAmount"); err != nil {
		return nil, err
	}
	if t.Amount.IsNegative() {
		return nil, xerrors.New(xerrors.KindMalformedEvent, "transferAmount must not be negative")
	}
	if t.Accumulated, err = amount(payload, "accumulated"); err != nil {
		return nil, err
	}
	if date := str(payload, "transactionDate"); date != "" {
		if t.TransactionDate, err = time.ParseInLocation(gatewayTimeLayout, date, vietnam); err != nil {
			if t.TransactionDate, err = time.Parse(time.RFC3339, date); err != nil {
				return nil, xerrors.New(xerrors.KindMalformedEvent, fmt.Sprintf("invalid transactionDate %q", date))
			}
		}
		t.TransactionDate = t.TransactionDate.UTC()
	}
	return t, nil
}

func str(payload map[string]interface{}, key string) string {
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func amount(payload map[string]interface{}, key string) (decimal.Decimal, error) {
	switch v := payload[key].(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return parseAmount(key, v.String())
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		return parseAmount(key, v)
	}
	return decimal.Zero, xerrors.New(xerrors.KindMalformedEvent, fmt.Sprintf("invalid %s", key))
}

func parseAmount(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, xerrors.New(xerrors.KindMalformedEvent, fmt.Sprintf("invalid %s %q", key, raw))
	}
	return d, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
