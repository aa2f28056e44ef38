package intent

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentMemo(t *testing.T) {
	memo, err := NewPaymentMemo()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^PAY[0-9A-F]{8}$`), memo)
}

func TestNewTopupMemo(t *testing.T) {
	now := time.Unix(1712345678, 0)
	memo, err := NewTopupMemo(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TOPUP1712345678[0-9A-F]{8}$`), memo)
	assert.True(t, IsTopupMemo(memo))
}

func TestMemosAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		memo, err := NewPaymentMemo()
		require.NoError(t, err)
		assert.False(t, seen[memo])
		seen[memo] = true
	}
}

func TestNormalizeMemo(t *testing.T) {
	assert.Equal(t, "TOPUP1712345678ABCD1234", NormalizeMemo("TOPUP_1712345678_ABCD1234"))
	assert.Equal(t, "TOPUP1712345678ABCD1234", NormalizeMemo("topup_1712345678_abcd1234"))
	assert.Equal(t, "TOPUP1712345678ABCD1234", NormalizeMemo("TOPUP1712345678ABCD1234"))
	assert.Equal(t, "TOPUP1712345678ABCD1234", NormalizeMemo("TOPUP1712345678_ABCD1234"))
	assert.Equal(t, "PAY0A1B2C3D", NormalizeMemo(" pay0a1b2c3d "))
}

func TestExtractMemo(t *testing.T) {
	cases := map[string]string{
		"MBVCB.5512.TOPUP1712345678ABCD1234.CT tu 0123": "TOPUP1712345678ABCD1234",
		"thanh toan TOPUP_1712345678_ABCD1234 nhe":      "TOPUP_1712345678_ABCD1234",
		"PAY0A1B2C3D":                              "PAY0A1B2C3D",
		"IBFT pay0a1b2c3d chuyen tien":             "pay0a1b2c3d",
		"TOPUP171234567812ABCDEF99 CT":             "TOPUP171234567812ABCDEF",
		"TOPUP_1712345678_0012ABCDEF":              "TOPUP_1712345678_0012ABCD",
		"REF8841 TOPUP171234567800AB12CDE4F5 tu A": "TOPUP171234567800AB12CD",
		"chuyen tien an trua":                      "",
		"PAYMENT FOR LUNCH":                        "",
	}
	for content, want := range cases {
		assert.Equal(t, want, ExtractMemo(content), content)
	}
}

func TestBuildQRURL(t *testing.T) {
	got := BuildQRURL("https://qr.sepay.vn/", "0123456789", "MBBank", decimal.NewFromInt(100000), "PAY0A1B2C3D")
	assert.Equal(t, "https://qr.sepay.vn/img?acc=0123456789&amount=100000&bank=MBBank&des=PAY0A1B2C3D&template=compact", got)

	again := BuildQRURL("https://qr.sepay.vn", "0123456789", "MBBank", decimal.NewFromInt(100000), "PAY0A1B2C3D")
	assert.Equal(t, got, again)
}
