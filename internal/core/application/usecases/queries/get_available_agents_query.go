package queries

import (
	"errors"
	"time"

	"orderdispatch/internal/pkg/guard"
)

var ErrGetAvailableAgentsQueryIsNotConstructed = errors.New(
	"GetAvailableAgentsQuery must be created via NewGetAvailableAgentsQuery constructor",
)

// GetAvailableAgentsQuery lists agents the matcher could offer an order to.
type GetAvailableAgentsQuery struct {
	guard guard.ConstructorGuard
}

func NewGetAvailableAgentsQuery() GetAvailableAgentsQuery {
	return GetAvailableAgentsQuery{guard: guard.NewConstructorGuard()}
}

func (q GetAvailableAgentsQuery) Validate() error {
	return q.guard.Validate(ErrGetAvailableAgentsQueryIsNotConstructed)
}

// GetAvailableAgentsQueryResponse is the read model of one available agent.
// Fresh is false when the last location report is older than the location TTL.
type GetAvailableAgentsQueryResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	LocationUpdatedAt *time.Time `json:"location_updated_at,omitempty"`
	Fresh             bool       `json:"fresh"`
}
