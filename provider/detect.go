package provider

import (
	"strings"
	"unicode"
)

// DetectProvider guesses the provider that issued a transaction id from its
// shape. Ids that match no rule map to defaultProvider. The rules are
// heuristics and can misclassify ids from other systems.
func DetectProvider(transactionID, defaultProvider string) string {
	switch {
	case strings.HasPrefix(transactionID, "pi_"), strings.HasPrefix(transactionID, "ch_"):
		return Stripe
	case strings.HasPrefix(transactionID, "bt_"):
		return BankTransfer
	case strings.HasPrefix(transactionID, "PAYPAL"), strings.HasPrefix(transactionID, "PAY-"):
		return PayPal
	case strings.HasPrefix(transactionID, "google."), strings.Contains(transactionID, ".a.o"):
		return GooglePlay
	case len(transactionID) >= 20 && isAlphanumeric(strings.ReplaceAll(transactionID, "-", "")):
		return AppleIAP
	}
	return defaultProvider
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
