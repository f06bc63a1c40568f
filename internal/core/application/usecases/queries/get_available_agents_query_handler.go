package queries

import (
	"context"
	"time"

	"orderdispatch/internal/core/ports"
)

type GetAvailableAgentsQueryHandler struct {
	agents      ports.AgentRepository
	clock       ports.Clock
	locationTTL time.Duration
}

func NewGetAvailableAgentsQueryHandler(
	agents ports.AgentRepository,
	clock ports.Clock,
	locationTTL time.Duration,
) GetAvailableAgentsQueryHandler {
	return GetAvailableAgentsQueryHandler{agents: agents, clock: clock, locationTTL: locationTTL}
}

func (h GetAvailableAgentsQueryHandler) Handle(
	ctx context.Context,
	query GetAvailableAgentsQuery,
) ([]GetAvailableAgentsQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	agents, err := h.agents.GetAllAvailable(ctx)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	resp := make([]GetAvailableAgentsQueryResponse, 0, len(agents))
	for _, a := range agents {
		item := GetAvailableAgentsQueryResponse{
			ID:    a.ID().String(),
			Name:  a.Name(),
			Fresh: a.IsFresh(now, h.locationTTL),
		}
		if loc, ok := a.Location(); ok {
			lat, lon, at := loc.Latitude(), loc.Longitude(), a.LocationUpdatedAt()
			item.Latitude, item.Longitude, item.LocationUpdatedAt = &lat, &lon, &at
		}
		resp = append(resp, item)
	}

	return resp, nil
}
