// Package services provides domain services that coordinate orders and agents.
//
// The package includes:
//   - OrderDispatcher: builds the ordered candidate set of agents for an order
//   - DispatchPolicy: the bounded retry schedule for orders nobody could take
package services
