// Package agent provides the delivery agent aggregate used by the dispatch
// matcher.
//
// An Agent carries its availability, its last reported location and the order
// it is currently serving. The aggregate enforces the pairing rule that an
// agent is assigned exactly when it holds an active order, so a crash between
// the two halves of an assignment can never be persisted.
//
// Key business rules:
//   - an agent starts offline and without a location
//   - only an available agent can take an order
//   - an assigned agent becomes available again only by releasing its order
//   - location reports older than the stored one are discarded
package agent
