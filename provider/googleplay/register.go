package googleplay

import "github.com/mstgnz/paykit/provider"

// Register adds the Google Play provider to r
func Register(r *provider.ProviderRegistry) error {
	return r.Register(provider.GooglePlay, NewProvider)
}
