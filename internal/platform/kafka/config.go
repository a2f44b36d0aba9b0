// Package kafka holds shared Kafka settings and a broker health check.
package kafka

import (
	"time"

	"eudi-storefront/internal/platform/kafka/producer"
)

// DefaultAuditTopic receives verification audit records.
const DefaultAuditTopic = "storefront.verification.audit"

// DefaultProducerConfig returns producer defaults for brokers.
func DefaultProducerConfig(brokers string) producer.Config {
	return producer.Config{
		Brokers:         brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 30 * time.Second,
		ClientID:        "eudi-storefront",
	}
}
