package commands

import (
	"errors"
	"fmt"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

var ErrPlaceOrderCommandIsNotConstructed = errors.New(
	"PlaceOrderCommand must be created via NewPlaceOrderCommand constructor",
)

// PlaceOrderCommand represents a newly placed order entering the lifecycle.
//
// Example:
//
//	pickup, _ := kernel.NewLocation(52.52, 13.405)
//	cmd, err := NewPlaceOrderCommand(orderID, customerID, merchantID, pickup, 1, time.Now())
//	if err != nil {
//	    return fmt.Errorf("invalid order data: %w", err)
//	}
//	if err := handler.Handle(ctx, cmd); err != nil {
//	    return fmt.Errorf("failed to place order: %w", err)
//	}
type PlaceOrderCommand struct { //nolint:recvcheck //using for validation
	orderID    kernel.ID
	customerID kernel.ID
	merchantID kernel.ID
	pickup     kernel.Location
	sequence   int64
	occurredAt time.Time

	guard guard.ConstructorGuard
}

func NewPlaceOrderCommand(
	orderID, customerID, merchantID kernel.ID,
	pickup kernel.Location,
	sequence int64,
	occurredAt time.Time,
) (PlaceOrderCommand, error) {
	cmd := PlaceOrderCommand{
		orderID:    orderID,
		customerID: customerID,
		merchantID: merchantID,
		pickup:     pickup,
		sequence:   sequence,
		occurredAt: occurredAt,
		guard:      guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		orderID.Validate(),
		customerID.Validate(),
		merchantID.Validate(),
		pickup.Validate(),
		validateSequence(sequence),
	); err != nil {
		return PlaceOrderCommand{}, err
	}

	return cmd, nil
}

func (c PlaceOrderCommand) Validate() error {
	return c.guard.Validate(ErrPlaceOrderCommandIsNotConstructed)
}

func (c PlaceOrderCommand) OrderID() kernel.ID       { return c.orderID }
func (c PlaceOrderCommand) CustomerID() kernel.ID    { return c.customerID }
func (c PlaceOrderCommand) MerchantID() kernel.ID    { return c.merchantID }
func (c PlaceOrderCommand) Pickup() kernel.Location  { return c.pickup }
func (c PlaceOrderCommand) Sequence() int64          { return c.sequence }
func (c PlaceOrderCommand) OccurredAt() time.Time    { return c.occurredAt }

func validateSequence(sequence int64) error {
	if sequence <= 0 {
		return errs.NewValueIsInvalidErrorWithCause("sequence", fmt.Errorf("%d is not greater than 0", sequence))
	}
	return nil
}
