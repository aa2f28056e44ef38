package intent

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// QRTemplate is the image layout requested from the gateway.
const QRTemplate = "compact"

// BuildQRURL returns the gateway image URL for a transfer. The result depends only on its inputs.
func BuildQRURL(baseURL, accountNumber, bankCode string, amount decimal.Decimal, memo string) string {
	q := url.Values{}
	q.Set("acc", accountNumber)
	q.Set("bank", bankCode)
	q.Set("amount", amount.Truncate(0).String())
	q.Set("des", memo)
	q.Set("template", QRTemplate)
	return strings.TrimRight(baseURL, "/") + "/img?" + q.Encode()
}
