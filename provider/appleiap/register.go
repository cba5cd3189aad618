package appleiap

import "github.com/mstgnz/paykit/provider"

// Register adds the Apple IAP provider to r
func Register(r *provider.ProviderRegistry) error {
	return r.Register(provider.AppleIAP, NewProvider)
}
