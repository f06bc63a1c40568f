// Package order provides the Order aggregate and the lifecycle state machine
// that decides what may happen to an order next.
//
// The package includes:
//   - Order: the aggregate root holding identity, parties, pickup location,
//     assigned agent, sequence counter and dispatch retry state
//   - Status: the lifecycle graph with transition validation
//   - StatusChanged: the record emitted for every committed transition
//
// Key business rules:
//   - placed -> confirmed -> ready_for_pickup -> assigned -> in_transit -> delivered
//   - cancelled is reachable from placed, confirmed and ready_for_pickup
//   - failed is reachable from assigned and in_transit, and from ready_for_pickup
//     once dispatch has exhausted its attempts
//   - delivered, cancelled and failed are terminal
//   - an event is applied only when its sequence key is strictly greater than
//     the stored sequence; anything else is stale and leaves the order untouched
//   - an order carries an agent if and only if it is assigned, in transit or
//     delivered (or failed after having had one)
package order
