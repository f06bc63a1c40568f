package agentrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderdispatch/internal/adapters/out/postgres/pgerrors"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"

	"gorm.io/gorm"
)

// GormAgentRepository implements ports.AgentRepository using GORM.
type GormAgentRepository struct {
	db      *gorm.DB
	tracker aggregateTracker
}

type aggregateTracker interface {
	TrackAggregate(id kernel.ID, aggregate any)
}

func NewGormAgentRepository(db *gorm.DB, tracker aggregateTracker) *GormAgentRepository {
	return &GormAgentRepository{
		db:      db,
		tracker: tracker,
	}
}

func (r *GormAgentRepository) Add(ctx context.Context, aggregate *agent.Agent) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	dto.Version = 1
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if pgerrors.IsDuplicateKey(err) {
			return errs.NewObjectAlreadyExistsError("agent", dto.ID)
		}
		return err
	}

	aggregate.SetVersion(dto.Version)
	r.track(aggregate)
	return nil
}

// Update writes the agent only if the stored version still matches. A unique
// violation on the active order is reported as ports.ErrOrderHeld.
func (r *GormAgentRepository) Update(ctx context.Context, aggregate *agent.Agent) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	expected := dto.Version
	dto.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(&AgentDTO{}).
		Where("id = ? AND version = ?", dto.ID, expected).
		Select("*").
		Updates(&dto)
	if result.Error != nil {
		if pgerrors.IsDuplicateKey(result.Error) {
			return fmt.Errorf("%w: agent %s", ports.ErrOrderHeld, dto.ID)
		}
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&AgentDTO{}).Where("id = ?", dto.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.NewObjectNotFoundError("agent", dto.ID)
		}
		return errs.NewVersionConflictError("agent", dto.ID, expected)
	}

	aggregate.SetVersion(dto.Version)
	r.track(aggregate)
	return nil
}

func (r *GormAgentRepository) Get(ctx context.Context, id kernel.ID) (*agent.Agent, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	var dto AgentDTO
	if err := r.db.WithContext(ctx).First(&dto, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("agent", id.String())
		}
		return nil, err
	}

	return toDomain(dto)
}

func (r *GormAgentRepository) GetAllAvailable(ctx context.Context) ([]*agent.Agent, error) {
	var dtos []AgentDTO
	err := r.db.WithContext(ctx).
		Where("availability = ?", agent.Available.String()).
		Order("id").
		Find(&dtos).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(dtos)
}

func (r *GormAgentRepository) GetStaleAvailable(
	ctx context.Context,
	reportedBefore time.Time,
	limit int,
) ([]*agent.Agent, error) {
	var dtos []AgentDTO
	err := r.db.WithContext(ctx).
		Where("availability = ?", agent.Available.String()).
		Where("location_updated_at IS NULL OR location_updated_at < ?", reportedBefore).
		Order("id").
		Limit(limit).
		Find(&dtos).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(dtos)
}

func (r *GormAgentRepository) track(aggregate *agent.Agent) {
	if r.tracker != nil {
		r.tracker.TrackAggregate(aggregate.ID(), aggregate)
	}
}

func toDomainList(dtos []AgentDTO) ([]*agent.Agent, error) {
	agents := make([]*agent.Agent, 0, len(dtos))
	for _, dto := range dtos {
		a, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}
