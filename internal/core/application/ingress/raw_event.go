package ingress

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"orderdispatch/internal/core/domain/model/event"
	"orderdispatch/internal/core/domain/model/kernel"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedEvent is returned for events that fail validation. Nothing is
// recorded for them, not even a dedup claim.
var ErrMalformedEvent = errors.New("malformed event")

// RawEvent is an inbound event as producers send it.
type RawEvent struct {
	EventID   string `json:"event_id,omitempty" validate:"omitempty,max=64"`
	Type      string `json:"type" validate:"required,event_type"`
	SubjectID string `json:"subject_id" validate:"required,max=64"`
	// Sequence is optional; when absent the sequence authority assigns one.
	Sequence *int64 `json:"sequence,omitempty" validate:"omitempty,gt=0"`

	CustomerID   string           `json:"customer_id,omitempty" validate:"required_if=Type order.placed,max=64"`
	MerchantID   string           `json:"merchant_id,omitempty" validate:"required_if=Type order.placed,max=64"`
	Pickup       *LocationPayload `json:"pickup,omitempty" validate:"required_if=Type order.placed"`
	Location     *LocationPayload `json:"location,omitempty" validate:"required_if=Type agent.location_updated"`
	AgentName    string           `json:"agent_name,omitempty" validate:"required_if=Type agent.registered,max=255"`
	Availability string           `json:"availability,omitempty" validate:"required_if=Type agent.status_updated,omitempty,oneof=available offline"`
	Reason       string           `json:"reason,omitempty" validate:"max=255"`
}

type LocationPayload struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// NewValidator returns a validator that knows the event type tag and reports
// fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		_, err := event.ParseType(fl.Field().String())
		return err == nil
	})
	return v
}

// normalize validates raw and builds an envelope without a sequence key.
func normalize(v *validator.Validate, raw RawEvent, receivedAt time.Time) (event.Envelope, error) {
	if err := v.Struct(raw); err != nil {
		return event.Envelope{}, malformed(err)
	}

	typ, err := event.ParseType(raw.Type)
	if err != nil {
		return event.Envelope{}, malformed(err)
	}

	subject, err := kernel.ParseID(raw.SubjectID)
	if err != nil {
		return event.Envelope{}, malformed(err)
	}

	id := kernel.NewID()
	if raw.EventID != "" {
		if id, err = kernel.ParseID(raw.EventID); err != nil {
			return event.Envelope{}, malformed(err)
		}
	}

	payload, err := buildPayload(typ, raw)
	if err != nil {
		return event.Envelope{}, malformed(err)
	}

	env := event.Envelope{
		ID:         id,
		Subject:    subject,
		Type:       typ,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}
	if raw.Sequence != nil {
		env.Sequence = *raw.Sequence
	}
	return env, nil
}

func buildPayload(typ event.Type, raw RawEvent) (event.Payload, error) {
	payload := event.Payload{
		AgentName:    strings.TrimSpace(raw.AgentName),
		Availability: raw.Availability,
		Reason:       raw.Reason,
	}

	var err error
	if typ == event.OrderPlaced {
		if payload.CustomerID, err = kernel.ParseID(raw.CustomerID); err != nil {
			return event.Payload{}, err
		}
		if payload.MerchantID, err = kernel.ParseID(raw.MerchantID); err != nil {
			return event.Payload{}, err
		}
	}

	if payload.Pickup, err = raw.Pickup.toLocation(); err != nil {
		return event.Payload{}, err
	}
	if payload.Location, err = raw.Location.toLocation(); err != nil {
		return event.Payload{}, err
	}

	if typ == event.AgentRegistered && payload.AgentName == "" {
		return event.Payload{}, errors.New("agent_name must not be blank")
	}

	return payload, nil
}

func (l *LocationPayload) toLocation() (*kernel.Location, error) {
	if l == nil || l.Latitude == nil || l.Longitude == nil {
		return nil, nil
	}
	loc, err := kernel.NewLocation(*l.Latitude, *l.Longitude)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func malformed(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrMalformedEvent, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
}
