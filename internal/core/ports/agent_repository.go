package ports

import (
	"context"
	"errors"
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
)

// ErrOrderHeld is returned by AgentRepository.Update when the order the agent
// is taking is already active on another agent. Stores that enforce this with a
// constraint leave the surrounding transaction unusable, so callers must roll
// back instead of trying another candidate.
var ErrOrderHeld = errors.New("order is held by another agent")

// AgentRepository defines the persistence contract for agent aggregates. Update
// follows the same version compare-and-set rule as OrderRepository.Update.
type AgentRepository interface {
	Add(ctx context.Context, aggregate *agent.Agent) error
	Update(ctx context.Context, aggregate *agent.Agent) error
	Get(ctx context.Context, id kernel.ID) (*agent.Agent, error)

	// GetAllAvailable returns agents whose availability is available.
	// Freshness and distance are decided by the dispatcher.
	GetAllAvailable(ctx context.Context) ([]*agent.Agent, error)

	// GetStaleAvailable returns available agents whose last location report is
	// older than reportedBefore, or who never reported one.
	GetStaleAvailable(ctx context.Context, reportedBefore time.Time, limit int) ([]*agent.Agent, error)
}
