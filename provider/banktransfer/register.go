package banktransfer

import "github.com/mstgnz/paykit/provider"

// Register adds the bank transfer provider to r. Its payments and
// subscriptions are read from and written to store.
func Register(r *provider.ProviderRegistry, store provider.Store) error {
	return r.Register(provider.BankTransfer, Factory(store))
}
