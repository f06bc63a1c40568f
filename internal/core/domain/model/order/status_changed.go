package order

import (
	"strconv"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
)

// StatusChanged is the outcome of one committed transition. Placement is
// reported with OldStatus Unknown.
type StatusChanged struct {
	OrderID    kernel.ID
	CustomerID kernel.ID
	MerchantID kernel.ID
	OldStatus  Status
	NewStatus  Status
	Sequence   int64
	AgentID    *kernel.ID
	Reason     FailureReason
	OccurredAt time.Time
}

// IdempotencyKey lets consumers drop redelivered notifications.
func (c StatusChanged) IdempotencyKey() string {
	return c.OrderID.String() + ":" + strconv.FormatInt(c.Sequence, 10)
}
