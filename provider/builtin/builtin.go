// Package builtin registers the payment providers that ship with PayKit.
package builtin

import (
	"fmt"

	"github.com/mstgnz/paykit/provider"
	"github.com/mstgnz/paykit/provider/appleiap"
	"github.com/mstgnz/paykit/provider/banktransfer"
	"github.com/mstgnz/paykit/provider/googleplay"
	"github.com/mstgnz/paykit/provider/paypal"
	"github.com/mstgnz/paykit/provider/stripe"
)

// Deps carries what the built-in providers need beyond their configuration
type Deps struct {
	// Store backs the bank transfer provider. Without it bank transfer
	// status, subscription and refund calls fail with a result error.
	Store provider.Store
}

// Register adds stripe, paypal, bank_transfer, apple_iap and google_play to r
func Register(r *provider.ProviderRegistry, deps Deps) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{provider.Stripe, func() error { return stripe.Register(r) }},
		{provider.PayPal, func() error { return paypal.Register(r) }},
		{provider.BankTransfer, func() error { return banktransfer.Register(r, deps.Store) }},
		{provider.AppleIAP, func() error { return appleiap.Register(r) }},
		{provider.GooglePlay, func() error { return googleplay.Register(r) }},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("registering %s: %w", reg.name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry with every built-in provider registered
func NewRegistry(deps Deps) (*provider.ProviderRegistry, error) {
	r := provider.NewProviderRegistry()
	if err := Register(r, deps); err != nil {
		return nil, err
	}
	return r, nil
}
