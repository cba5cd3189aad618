// Package provider implements the payment core of PayKit: one contract for
// every payment backend, a registry of provider factories, and a manager
// that routes operations between them.
//
// # Core Concepts
//
//   - PaymentProvider: the capability contract every backend implements
//   - ProviderRegistry: maps lowercase names to factories, built once at start-up
//   - PaymentManager: resolves a provider per call, caches instances, processes
//     webhooks and runs the registration workflow
//   - Store: the persistence surface for plans, subscriptions and payments
//
// # Basic Usage
//
//	registry := provider.NewProviderRegistry()
//	if err := builtin.Register(registry, builtin.Deps{Store: store}); err != nil {
//	    log.Fatal(err)
//	}
//
//	manager := provider.NewPaymentManager(registry, config.NewProviderConfig(),
//	    provider.WithStore(store),
//	    provider.WithDefaultProvider("stripe"),
//	)
//
//	result, err := manager.CreatePaymentIntent(ctx, "stripe", provider.PaymentIntentRequest{
//	    Amount:   decimal.RequireFromString("19.99"),
//	    Currency: "USD",
//	})
//	if err != nil {
//	    // the caller's context was cancelled or the provider is unknown
//	}
//	if !result.Success {
//	    log.Printf("payment failed: %s", result.Error.Code)
//	}
//
// # Results and Errors
//
// Operations that return a result report every provider outcome in it:
// declines, transport failures, unsupported operations and missing
// configuration all come back with Success=false and Error set. The error
// return is reserved for caller aborts and for lookups that cannot produce
// a result (an unknown provider yields a *PaymentError with code
// PROVIDER_NOT_FOUND). ParseWebhook has no result type and returns its
// failures as *PaymentError.
//
// # Provider Resolution
//
// Confirm, status and refund calls may omit the provider. The manager then
// uses the provider stored with the payment row and, for ids it has never
// stored, guesses from the id shape (DetectProvider). The guess can be wrong
// for ids issued by other systems.
//
// # Webhooks
//
// ProcessWebhook parses the notification, drops redeliveries through the
// configured WebhookDeduper, dispatches the event to the provider,
// reconciles stored payments and subscriptions, and hands the processed
// event to every AuditSink.
package provider
