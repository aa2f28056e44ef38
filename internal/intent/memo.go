package intent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	PaymentMemoPrefix = "PAY"
	TopupMemoPrefix   = "TOPUP"
)

// memoPattern finds a memo inside free-form transfer content. Banks often prepend
// their own reference and may keep the separators of the legacy TOPUP_<ts>_<rand> form.
// The timestamp is exactly ten digits so trailing hex text never shifts the suffix.
var memoPattern = regexp.MustCompile(`(?i)(TOPUP_?\d{10}_?[0-9A-F]{8}|PAY[0-9A-F]{8})`)

func randomHex() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// NewPaymentMemo returns PAY followed by 8 hex digits.
func NewPaymentMemo() (string, error) {
	suffix, err := randomHex()
	if err != nil {
		return "", err
	}
	return PaymentMemoPrefix + suffix, nil
}

// NewTopupMemo returns TOPUP, the unix time and 8 hex digits.
func NewTopupMemo(now time.Time) (string, error) {
	suffix, err := randomHex()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d%s", TopupMemoPrefix, now.Unix(), suffix), nil
}

// NormalizeMemo upper-cases a memo and folds the legacy underscore form into the current one.
func NormalizeMemo(memo string) string {
	memo = strings.ToUpper(strings.TrimSpace(memo))
	if strings.HasPrefix(memo, TopupMemoPrefix) {
		memo = strings.ReplaceAll(memo, "_", "")
	}
	return memo
}

// ExtractMemo returns the first memo found in text, as written, or "".
func ExtractMemo(text string) string {
	return memoPattern.FindString(text)
}

// IsTopupMemo reports whether memo belongs to a wallet top-up.
func IsTopupMemo(memo string) bool {
	return strings.HasPrefix(NormalizeMemo(memo), TopupMemoPrefix)
}
