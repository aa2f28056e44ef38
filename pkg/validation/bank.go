package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// ValidateBankCode validates a gateway bank code (short name such as "MBBank" or "VCB")
func ValidateBankCode(code string) error {
	if code == "" {
		return fmt.Errorf("bank code cannot be empty")
	}
	if len(code) > 32 {
		return fmt.Errorf("invalid bank code length: expected at most 32 characters, got %d", len(code))
	}
	for _, r := range code {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("invalid bank code %q: only letters and digits are allowed", code)
		}
	}
	return nil
}

// NormalizeBankCode converts a bank code to the upper-case form used for lookups
func NormalizeBankCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateAccountNumber validates a receiving bank account number
func ValidateAccountNumber(number string) error {
	if number == "" {
		return fmt.Errorf("account number cannot be empty")
	}
	if len(number) < 6 || len(number) > 20 {
		return fmt.Errorf("invalid account number length: expected 6-20 digits, got %d", len(number))
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid account number %q: only digits are allowed", number)
		}
	}
	return nil
}

// ValidateEmail validates an email address and returns it lower-cased
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("invalid email: %w", err)
	}
	return strings.ToLower(addr.Address), nil
}
