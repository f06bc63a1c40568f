// Package postgres implements the unit of work over GORM transactions.
//
// A unit of work opens one transaction, hands out repositories bound to it and
// remembers every order those repositories wrote. Status changes recorded on
// the tracked orders are released only after the transaction commits, so a
// rolled back write never reaches the outcome publisher.
//
// Typical use from a command handler:
//
//	uow := factory.Create()
//	if err := uow.Begin(ctx); err != nil {
//	    return err
//	}
//	if err := uow.OrderRepository().Update(ctx, o); err != nil {
//	    _ = uow.Rollback(ctx)
//	    return err
//	}
//	if err := uow.Commit(ctx); err != nil {
//	    return err
//	}
//	for _, change := range uow.CommittedChanges() {
//	    publisher.Publish(ctx, change)
//	}
//
// Concurrent writers are serialized by the version column on each row, not by
// database locks. A unit of work instance is not safe for concurrent use.
package postgres

import (
	"context"

	"orderdispatch/internal/adapters/out/postgres/agentrepo"
	"orderdispatch/internal/adapters/out/postgres/orderrepo"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"

	"gorm.io/gorm"
)

// trackedAggregate is an aggregate written during the unit of work.
type trackedAggregate struct {
	ID        kernel.ID
	Aggregate any
}

// Migrate creates or updates the tables used by the repositories.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&orderrepo.OrderDTO{}, &agentrepo.AgentDTO{})
}

// GormUnitOfWorkFactory creates UnitOfWork instances sharing one connection pool.
type GormUnitOfWorkFactory struct {
	db *gorm.DB
}

func NewGormUnitOfWorkFactory(db *gorm.DB) *GormUnitOfWorkFactory {
	return &GormUnitOfWorkFactory{db: db}
}

// Create returns a fresh unit of work with no open transaction.
func (f *GormUnitOfWorkFactory) Create() ports.UnitOfWork {
	return &GormUnitOfWork{
		db:                f.db,
		trackedAggregates: make([]trackedAggregate, 0),
	}
}

// GormUnitOfWork coordinates one database transaction across the order and
// agent repositories.
type GormUnitOfWork struct {
	db                *gorm.DB
	tx                *gorm.DB
	trackedAggregates []trackedAggregate
	committed         []order.StatusChanged
}

// Begin opens a transaction. Calling it again while one is open is a no-op.
func (uow *GormUnitOfWork) Begin(ctx context.Context) error {
	if uow.tx != nil {
		return nil
	}

	uow.trackedAggregates = uow.trackedAggregates[:0]
	uow.committed = nil

	uow.tx = uow.db.WithContext(ctx).Begin()
	if uow.tx.Error != nil {
		err := uow.tx.Error
		uow.tx = nil
		return err
	}

	return nil
}

// Commit makes the transaction durable and then collects the status changes of
// every order written through it.
func (uow *GormUnitOfWork) Commit(_ context.Context) error {
	if uow.tx == nil {
		return gorm.ErrInvalidTransaction
	}

	err := uow.tx.Commit().Error
	uow.tx = nil
	if err != nil {
		uow.trackedAggregates = uow.trackedAggregates[:0]
		return err
	}

	uow.committed = uow.pullChanges()
	return nil
}

// Rollback discards the transaction together with any tracked changes.
func (uow *GormUnitOfWork) Rollback(_ context.Context) error {
	if uow.tx == nil {
		return gorm.ErrInvalidTransaction
	}

	err := uow.tx.Rollback().Error
	uow.tx = nil
	uow.trackedAggregates = uow.trackedAggregates[:0]
	return err
}

func (uow *GormUnitOfWork) OrderRepository() ports.OrderRepository {
	return orderrepo.NewGormOrderRepository(uow.session(), uow)
}

func (uow *GormUnitOfWork) AgentRepository() ports.AgentRepository {
	return agentrepo.NewGormAgentRepository(uow.session(), uow)
}

func (uow *GormUnitOfWork) CommittedChanges() []order.StatusChanged {
	return uow.committed
}

// TrackAggregate is called by the repositories after each successful write.
func (uow *GormUnitOfWork) TrackAggregate(id kernel.ID, aggregate any) {
	uow.trackedAggregates = append(uow.trackedAggregates, trackedAggregate{
		ID:        id,
		Aggregate: aggregate,
	})
}

// session returns the open transaction, or the pool when none is open so that
// read-only callers can use the repositories without Begin.
func (uow *GormUnitOfWork) session() *gorm.DB {
	if uow.tx != nil {
		return uow.tx
	}
	return uow.db
}

// pullChanges drains each tracked order once, in write order. An order written
// twice in one transaction is tracked twice but its changes are pulled on the
// first visit.
func (uow *GormUnitOfWork) pullChanges() []order.StatusChanged {
	var changes []order.StatusChanged
	seen := make(map[*order.Order]struct{})
	for _, tracked := range uow.trackedAggregates {
		o, ok := tracked.Aggregate.(*order.Order)
		if !ok {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		changes = append(changes, o.PullChanges()...)
	}
	uow.trackedAggregates = uow.trackedAggregates[:0]
	return changes
}
