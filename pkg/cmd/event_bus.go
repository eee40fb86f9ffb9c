// Package cmd provides shared construction helpers for the service
// binaries.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/voxmuse/atelier/pkg/channels/gochannel"
	"github.com/voxmuse/atelier/pkg/channels/kafka"
	"github.com/voxmuse/atelier/pkg/eventbus"
)

// NewEventBus creates an event bus for the named transport. "memory"
// is single-process only; "kafka" requires KAFKA_BROKERS.
func NewEventBus(provider string, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "memory", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
