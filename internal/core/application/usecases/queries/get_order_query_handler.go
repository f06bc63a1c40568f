package queries

import (
	"context"

	"orderdispatch/internal/core/ports"
)

// GetOrderQueryHandler reads an order through the order repository.
type GetOrderQueryHandler struct {
	orders ports.OrderRepository
}

func NewGetOrderQueryHandler(orders ports.OrderRepository) GetOrderQueryHandler {
	return GetOrderQueryHandler{orders: orders}
}

// Handle returns errs.ErrObjectNotFound for an unknown order.
func (h GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (GetOrderQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return GetOrderQueryResponse{}, err
	}

	o, err := h.orders.Get(ctx, query.OrderID())
	if err != nil {
		return GetOrderQueryResponse{}, err
	}

	resp := GetOrderQueryResponse{
		ID:               o.ID().String(),
		CustomerID:       o.CustomerID().String(),
		MerchantID:       o.MerchantID().String(),
		Status:           o.Status().String(),
		PickupLatitude:   o.Pickup().Latitude(),
		PickupLongitude:  o.Pickup().Longitude(),
		Sequence:         o.Sequence(),
		DispatchAttempts: o.DispatchAttempts(),
		NextDispatchAt:   o.NextDispatchAt(),
		FailureReason:    string(o.FailureReason()),
		CreatedAt:        o.CreatedAt(),
		LastTransitionAt: o.LastTransitionAt(),
	}
	if agentID := o.AgentID(); agentID != nil {
		id := agentID.String()
		resp.AgentID = &id
	}

	return resp, nil
}
