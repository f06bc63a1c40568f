// Package agentrepo maps agent aggregates to the agents table.
package agentrepo

import (
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
)

// AgentDTO is the row layout of an agent. The unique index on active_order_id
// keeps two agents from ever holding the same order, even across instances.
type AgentDTO struct {
	ID                string      `gorm:"type:varchar(64);primaryKey"`
	Name              string      `gorm:"type:varchar(255);not null"`
	Availability      string      `gorm:"type:varchar(16);not null;index"`
	Location          LocationDTO `gorm:"embedded;embeddedPrefix:location_"`
	LocationUpdatedAt *time.Time
	ActiveOrderID     *string   `gorm:"type:varchar(64);uniqueIndex"`
	Sequence          int64     `gorm:"not null"`
	RegisteredAt      time.Time `gorm:"not null"`
	Version           int64     `gorm:"not null"`
}

func (AgentDTO) TableName() string {
	return "agents"
}

// LocationDTO is the embedded last reported location. Both columns are null
// until the agent reports one.
type LocationDTO struct {
	Latitude  *float64
	Longitude *float64
}

func fromDomain(a *agent.Agent) AgentDTO {
	dto := AgentDTO{
		ID:           a.ID().String(),
		Name:         a.Name(),
		Availability: a.Availability().String(),
		Sequence:     a.Sequence(),
		RegisteredAt: a.RegisteredAt(),
		Version:      a.Version(),
	}

	if loc, ok := a.Location(); ok {
		lat, lon := loc.Latitude(), loc.Longitude()
		dto.Location = LocationDTO{Latitude: &lat, Longitude: &lon}
		updatedAt := a.LocationUpdatedAt()
		dto.LocationUpdatedAt = &updatedAt
	}

	if id := a.ActiveOrderID(); id != nil {
		s := id.String()
		dto.ActiveOrderID = &s
	}

	return dto
}

func toDomain(dto AgentDTO) (*agent.Agent, error) {
	id, err := kernel.ParseID(dto.ID)
	if err != nil {
		return nil, err
	}

	availability, err := agent.ParseAvailability(dto.Availability)
	if err != nil {
		return nil, err
	}

	snapshot := agent.Snapshot{
		ID:           id,
		Name:         dto.Name,
		Availability: availability,
		Sequence:     dto.Sequence,
		RegisteredAt: dto.RegisteredAt,
		Version:      dto.Version,
	}

	if dto.Location.Latitude != nil && dto.Location.Longitude != nil {
		loc, locErr := kernel.NewLocation(*dto.Location.Latitude, *dto.Location.Longitude)
		if locErr != nil {
			return nil, locErr
		}
		snapshot.Location = &loc
		if dto.LocationUpdatedAt != nil {
			snapshot.LocationUpdatedAt = *dto.LocationUpdatedAt
		}
	}

	if dto.ActiveOrderID != nil {
		orderID, orderErr := kernel.ParseID(*dto.ActiveOrderID)
		if orderErr != nil {
			return nil, orderErr
		}
		snapshot.ActiveOrderID = &orderID
	}

	return agent.RestoreAgent(snapshot)
}
