// Package ironlicensing is the Go SDK for the IronLicensing service:
// software licensing, activation and feature entitlements for applications.
//
// # Architecture Overview
//
// The SDK consists of a few cooperating pieces:
//
//   - Client: the license state machine owning the current license snapshot
//   - transport: wire-protocol client for the licensing HTTP API
//   - machineid: durable per-host identifier binding activations to a machine
//   - resultCache: optional offline reuse of recent validation results
//
// # Quick Start
//
//	client, err := ironlicensing.NewWithCredentials(
//		"pk_live_your_public_key",
//		"your-product-slug",
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result := client.Validate(ctx, "IRON-XXXX-XXXX-XXXX-XXXX")
//	if result.Valid {
//		fmt.Println("license is valid")
//	}
//
//	if client.HasFeature("premium") {
//		fmt.Println("premium features enabled")
//	}
//
// # Default Client
//
// For embedders that do not want to pass a *Client around, a process-wide
// default client can be initialized once:
//
//	if err := ironlicensing.Init("pk_live_...", "your-product-slug"); err != nil {
//		log.Fatal(err)
//	}
//	ok, _ := ironlicensing.HasFeature("premium")
//
// # Failure Model
//
// Licensing operations never return a Go error for network, HTTP or parse
// failures; every outcome collapses into a LicenseResult so that a flaky
// network cannot crash an embedding application. Entitlement queries answer
// from the local snapshot and simply reflect "not licensed" until a
// validation or activation succeeds.
//
// # Concurrency
//
// A Client is safe to share across goroutines. Readers never observe a
// partially updated license: the snapshot and its key are swapped together
// under a write lock, while the network call happens outside it.
package ironlicensing
