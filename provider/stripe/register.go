package stripe

import "github.com/mstgnz/paykit/provider"

// Register adds the Stripe provider to r
func Register(r *provider.ProviderRegistry) error {
	return r.Register(provider.Stripe, NewProvider)
}
