// Package paykit provides a payment gateway that puts Stripe, PayPal, bank
// transfer, Apple In-App Purchase and Google Play Billing behind one
// provider contract and one HTTP API.
//
// # Overview
//
// Each payment backend speaks its own protocol: Stripe payment intents,
// PayPal orders, manually confirmed bank transfers, and app store receipts
// that can only be verified, never charged. PayKit normalizes all of them
// into the same results, statuses and error codes, so callers switch
// providers by changing a name.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│     PayKit      │◄──►│   Payment       │
//	│                 │    │   (Gateway)     │    │   Providers     │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Supported Providers
//
//   - stripe: payment intents, refunds, subscriptions, signed webhooks
//   - paypal: orders with capture, refunds, billing subscriptions
//   - bank_transfer: transfer instructions, operator confirmation, local refunds
//   - apple_iap: receipt verification and server notifications
//   - google_play: purchase verification and real-time developer notifications
//
// # Quick Start
//
//	registry, err := builtin.NewRegistry(builtin.Deps{Store: store})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	manager := provider.NewPaymentManager(registry, config.NewProviderConfig(),
//	    provider.WithDefaultProvider("stripe"),
//	    provider.WithStore(store),
//	)
//
//	result, err := manager.CreatePaymentIntent(ctx, "", provider.PaymentIntentRequest{
//	    Amount:   decimal.RequireFromString("19.99"),
//	    Currency: "USD",
//	})
//	if err != nil {
//	    return err // the context was cancelled or timed out
//	}
//	if !result.Success {
//	    // result.Error.Code tells what the provider refused
//	}
//
// # HTTP API
//
//	POST /v1/payments/{provider}
//	POST /v1/payments/confirm
//	GET  /v1/payments/status/{transactionID}
//	POST /v1/payments/refund
//	POST /v1/subscriptions/register
//	POST /v1/bank-transfers/{transactionID}/confirm
//	POST /webhooks/{provider}
//
// Everything under /v1 requires "Authorization: Bearer <API_KEY>".
// /health, /metrics and /webhooks are public; webhook authenticity is
// checked by each provider.
//
// # Configuration
//
// Provider credentials come from the environment, for example
// STRIPE_SECRET_KEY, STRIPE_WEBHOOK_SECRET, PAYPAL_CLIENT_ID,
// BANK_TRANSFER_BANK_NAME, APPLE_IAP_SHARED_SECRET and
// GOOGLE_PLAY_SERVICE_ACCOUNT_JSON. A .env file is read at start-up.
//
// # Command Line
//
//	paykit serve
//	paykit providers
//	paykit confirm-transfer bt_9F2C41D07A6B4E18C3D5A0B2 --admin ops-1 --notes "seen on statement"
package paykit
