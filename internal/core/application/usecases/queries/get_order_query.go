// Package queries contains read operations for retrieving system state.
// Queries return read models shaped for the HTTP adapter and never modify
// aggregates.
package queries

import (
	"errors"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/guard"
)

var ErrGetOrderQueryIsNotConstructed = errors.New(
	"GetOrderQuery must be created via NewGetOrderQuery constructor",
)

// GetOrderQuery retrieves the current state of one order.
//
// Example:
//
//	query, err := NewGetOrderQuery(orderID)
//	if err != nil {
//	    return err
//	}
//	view, err := handler.Handle(ctx, query)
type GetOrderQuery struct {
	orderID kernel.ID
	guard   guard.ConstructorGuard
}

func NewGetOrderQuery(orderID kernel.ID) (GetOrderQuery, error) {
	if err := orderID.Validate(); err != nil {
		return GetOrderQuery{}, err
	}
	return GetOrderQuery{orderID: orderID, guard: guard.NewConstructorGuard()}, nil
}

func (q GetOrderQuery) Validate() error {
	return q.guard.Validate(ErrGetOrderQueryIsNotConstructed)
}

func (q GetOrderQuery) OrderID() kernel.ID {
	return q.orderID
}

// GetOrderQueryResponse is the read model of an order.
type GetOrderQueryResponse struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customer_id"`
	MerchantID       string     `json:"merchant_id"`
	Status           string     `json:"status"`
	PickupLatitude   float64    `json:"pickup_latitude"`
	PickupLongitude  float64    `json:"pickup_longitude"`
	AgentID          *string    `json:"agent_id,omitempty"`
	Sequence         int64      `json:"sequence"`
	DispatchAttempts int        `json:"dispatch_attempts"`
	NextDispatchAt   *time.Time `json:"next_dispatch_at,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
}
