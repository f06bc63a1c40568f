package orderrepo

import (
	"context"
	"errors"
	"time"

	"orderdispatch/internal/adapters/out/postgres/pgerrors"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"

	"gorm.io/gorm"
)

// GormOrderRepository implements ports.OrderRepository using GORM.
type GormOrderRepository struct {
	db      *gorm.DB
	tracker aggregateTracker
}

// aggregateTracker collects written aggregates so the unit of work can hand out
// their status changes after commit.
type aggregateTracker interface {
	TrackAggregate(id kernel.ID, aggregate any)
}

// NewGormOrderRepository creates a repository bound to db, which is usually a
// transaction. tracker may be nil for read-only use.
func NewGormOrderRepository(db *gorm.DB, tracker aggregateTracker) *GormOrderRepository {
	return &GormOrderRepository{
		db:      db,
		tracker: tracker,
	}
}

// Add inserts a new order at version 1.
func (r *GormOrderRepository) Add(ctx context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	dto.Version = 1
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if pgerrors.IsDuplicateKey(err) {
			return errs.NewObjectAlreadyExistsError("order", dto.ID)
		}
		return err
	}

	aggregate.SetVersion(dto.Version)
	r.track(aggregate)
	return nil
}

// Update writes the order only if the stored version still matches.
func (r *GormOrderRepository) Update(ctx context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	expected := dto.Version
	dto.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(&OrderDTO{}).
		Where("id = ? AND version = ?", dto.ID, expected).
		Select("*").
		Updates(&dto)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&OrderDTO{}).Where("id = ?", dto.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.NewObjectNotFoundError("order", dto.ID)
		}
		return errs.NewVersionConflictError("order", dto.ID, expected)
	}

	aggregate.SetVersion(dto.Version)
	r.track(aggregate)
	return nil
}

// Get retrieves an order by ID.
func (r *GormOrderRepository) Get(ctx context.Context, id kernel.ID) (*order.Order, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	var dto OrderDTO
	if err := r.db.WithContext(ctx).First(&dto, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("order", id.String())
		}
		return nil, err
	}

	return toDomain(dto)
}

func (r *GormOrderRepository) GetDueForDispatch(ctx context.Context, now time.Time, limit int) ([]*order.Order, error) {
	return r.findReady(ctx, limit, r.db.WithContext(ctx).
		Where("next_dispatch_at IS NULL OR next_dispatch_at <= ?", now))
}

func (r *GormOrderRepository) GetAwaitingDispatch(ctx context.Context, limit int) ([]*order.Order, error) {
	return r.findReady(ctx, limit, r.db.WithContext(ctx))
}

func (r *GormOrderRepository) findReady(_ context.Context, limit int, query *gorm.DB) ([]*order.Order, error) {
	var dtos []OrderDTO
	err := query.
		Where("status = ?", order.ReadyForPickup.String()).
		Order("last_transition_at, id").
		Limit(limit).
		Find(&dtos).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*order.Order, 0, len(dtos))
	for _, dto := range dtos {
		o, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, nil
}

func (r *GormOrderRepository) track(aggregate *order.Order) {
	if r.tracker != nil {
		r.tracker.TrackAggregate(aggregate.ID(), aggregate)
	}
}
