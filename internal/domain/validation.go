package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by balances and amounts.
const MoneyScale = 2

// MaxBalance is the largest balance the ledger and the journal can both store.
var MaxBalance = decimal.RequireFromString("9999999999.99")

var (
	// Regex pattern for validating decimal amounts with up to 2 decimal places
	amountPattern = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
)

// ParseAmount parses a decimal string with up to 2 fractional digits.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount value cannot be empty")
	}
	if !amountPattern.MatchString(value) {
		return decimal.Zero, fmt.Errorf("invalid amount format %q: must be a decimal with up to 2 decimal places", value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount: %w", err)
	}
	return d, nil
}

// ValidateScale rejects values with more than 2 fractional digits.
func ValidateScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places", d.String(), MoneyScale)
	}
	return nil
}

// FormatAmount renders a decimal with exactly 2 fractional digits (e.g. "1500.00").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// FormatCurrency renders an amount as dollars, e.g. "$1500.00".
func FormatCurrency(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + FormatAmount(d.Neg())
	}
	return "$" + FormatAmount(d)
}

// MaskCardNumber hides all but the last 4 digits of a 16-character card number.
// Anything that is not exactly 16 characters is fully masked.
func MaskCardNumber(cardNumber string) string {
	if !ValidCardNumberLength(cardNumber) {
		return strings.Repeat("*", CardNumberLength)
	}
	runes := []rune(cardNumber)
	return strings.Repeat("*", CardNumberLength-4) + string(runes[CardNumberLength-4:])
}

// ValidCardNumberLength reports whether cardNumber is exactly CardNumberLength
// characters of valid UTF-8.
func ValidCardNumberLength(cardNumber string) bool {
	return utf8.ValidString(cardNumber) && utf8.RuneCountInString(cardNumber) == CardNumberLength
}

// NormalizeConfirmation trims and upper-cases the client's answer, so absent and
// blank are the same and "y"/"n" are accepted.
func NormalizeConfirmation(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// FormatTransactionID renders a journal id as a 16-digit zero-padded string.
func FormatTransactionID(id int64) string {
	return fmt.Sprintf("%016d", id)
}
