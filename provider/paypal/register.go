package paypal

import "github.com/mstgnz/paykit/provider"

// Register adds the PayPal provider to r
func Register(r *provider.ProviderRegistry) error {
	return r.Register(provider.PayPal, NewProvider)
}
