// Package event defines the canonical envelope every inbound event is
// normalized into before it reaches the order state machine or the matcher.
package event

import (
	"fmt"
	"strings"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
)

// Type names an inbound event kind.
type Type string

const (
	OrderPlaced            Type = "order.placed"
	OrderPaymentConfirmed  Type = "order.payment_confirmed"
	OrderReady             Type = "order.ready"
	OrderCancelled         Type = "order.cancelled"
	OrderPickedUp          Type = "order.picked_up"
	OrderDeliveryCompleted Type = "order.delivery_completed"
	OrderDeliveryFailed    Type = "order.delivery_failed"
	AgentRegistered        Type = "agent.registered"
	AgentLocationUpdated   Type = "agent.location_updated"
	AgentStatusUpdated     Type = "agent.status_updated"
)

var knownTypes = []Type{
	OrderPlaced,
	OrderPaymentConfirmed,
	OrderReady,
	OrderCancelled,
	OrderPickedUp,
	OrderDeliveryCompleted,
	OrderDeliveryFailed,
	AgentRegistered,
	AgentLocationUpdated,
	AgentStatusUpdated,
}

func ParseType(s string) (Type, error) {
	for _, t := range knownTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errs.NewValueIsInvalidErrorWithCause("event type", fmt.Errorf("%q is not a known event type", s))
}

// IsOrderEvent reports whether the subject of t is an order.
func (t Type) IsOrderEvent() bool {
	return strings.HasPrefix(string(t), "order.")
}

// Envelope is one normalized inbound event. Sequence is always set by the time
// an envelope leaves ingress; it is either supplied by the producer or
// allocated by the sequence authority.
type Envelope struct {
	ID         kernel.ID
	Subject    kernel.ID
	Type       Type
	Sequence   int64
	Payload    Payload
	ReceivedAt time.Time
}

// DedupKey identifies the envelope in the dedup window.
func (e Envelope) DedupKey() string {
	return fmt.Sprintf("%s:%d", e.Subject, e.Sequence)
}

// Payload holds the type-specific fields. Unused fields stay zero.
type Payload struct {
	CustomerID   kernel.ID
	MerchantID   kernel.ID
	Pickup       *kernel.Location
	Location     *kernel.Location
	AgentName    string
	Availability string
	Reason       string
}
