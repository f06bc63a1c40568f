// Package broker sends outbound notifications to a message broker.
package broker

import "context"

// MessageBroker publishes opaque payloads to a named topic.
type MessageBroker interface {
	// Publish sends data to topic with the given headers.
	Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error
	// Close releases connections.
	Close() error
}
