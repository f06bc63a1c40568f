// Package orderrepo maps order aggregates to the orders table.
package orderrepo

import (
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
)

// OrderDTO is the row layout of an order. The dispatch index serves the retry
// job, which scans ready orders oldest first.
type OrderDTO struct {
	ID               string      `gorm:"type:varchar(64);primaryKey"`
	CustomerID       string      `gorm:"type:varchar(64);not null"`
	MerchantID       string      `gorm:"type:varchar(64);not null;index"`
	Pickup           LocationDTO `gorm:"embedded;embeddedPrefix:pickup_"`
	AgentID          *string     `gorm:"type:varchar(64);index"`
	Status           string      `gorm:"type:varchar(32);not null;index:idx_orders_dispatch,priority:1"`
	Sequence         int64       `gorm:"not null"`
	CreatedAt        time.Time   `gorm:"not null;autoCreateTime:false"`
	LastTransitionAt time.Time   `gorm:"not null;index:idx_orders_dispatch,priority:2"`
	DispatchAttempts int         `gorm:"not null;default:0"`
	NextDispatchAt   *time.Time
	FailureReason    string `gorm:"type:varchar(32)"`
	Version          int64  `gorm:"not null"`
}

func (OrderDTO) TableName() string {
	return "orders"
}

// LocationDTO is the embedded pickup location.
type LocationDTO struct {
	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
}

func fromDomain(o *order.Order) OrderDTO {
	var agentID *string
	if id := o.AgentID(); id != nil {
		s := id.String()
		agentID = &s
	}

	return OrderDTO{
		ID:         o.ID().String(),
		CustomerID: o.CustomerID().String(),
		MerchantID: o.MerchantID().String(),
		Pickup: LocationDTO{
			Latitude:  o.Pickup().Latitude(),
			Longitude: o.Pickup().Longitude(),
		},
		AgentID:          agentID,
		Status:           o.Status().String(),
		Sequence:         o.Sequence(),
		CreatedAt:        o.CreatedAt(),
		LastTransitionAt: o.LastTransitionAt(),
		DispatchAttempts: o.DispatchAttempts(),
		NextDispatchAt:   o.NextDispatchAt(),
		FailureReason:    string(o.FailureReason()),
		Version:          o.Version(),
	}
}

func toDomain(dto OrderDTO) (*order.Order, error) {
	id, err := kernel.ParseID(dto.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := kernel.ParseID(dto.CustomerID)
	if err != nil {
		return nil, err
	}
	merchantID, err := kernel.ParseID(dto.MerchantID)
	if err != nil {
		return nil, err
	}

	var agentID *kernel.ID
	if dto.AgentID != nil {
		aID, agentErr := kernel.ParseID(*dto.AgentID)
		if agentErr != nil {
			return nil, agentErr
		}
		agentID = &aID
	}

	pickup, err := kernel.NewLocation(dto.Pickup.Latitude, dto.Pickup.Longitude)
	if err != nil {
		return nil, err
	}

	status, err := order.ParseStatus(dto.Status)
	if err != nil {
		return nil, err
	}

	return order.RestoreOrder(order.Snapshot{
		ID:               id,
		CustomerID:       customerID,
		MerchantID:       merchantID,
		Pickup:           pickup,
		AgentID:          agentID,
		Status:           status,
		Sequence:         dto.Sequence,
		CreatedAt:        dto.CreatedAt,
		LastTransitionAt: dto.LastTransitionAt,
		DispatchAttempts: dto.DispatchAttempts,
		NextDispatchAt:   dto.NextDispatchAt,
		FailureReason:    order.FailureReason(dto.FailureReason),
		Version:          dto.Version,
	})
}
