// Package kernel provides the value objects shared by the order and agent
// aggregates.
//
// The package includes:
//   - ID: an opaque, non-empty entity identifier. Identifiers arrive from
//     external producers (customer, merchant and agent applications), so they
//     are not restricted to UUIDs; NewID mints a UUID-based one when the core
//     has to create an identity itself.
//   - Location: a validated latitude/longitude pair with great-circle distance.
//
// Values are immutable and safe to share between goroutines.
package kernel
