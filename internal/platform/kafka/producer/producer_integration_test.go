//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/platform/kafka"
	"eudi-storefront/internal/platform/kafka/producer"
	"eudi-storefront/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	cfg := kafka.DefaultProducerConfig(s.kafka.Brokers)
	cfg.DeliveryTimeout = 10 * time.Second

	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close(5 * time.Second)
	}
}

func (s *ProducerIntegrationSuite) TestProduceIsAcknowledged() {
	ctx := context.Background()
	topic := "producer-sync"
	s.Require().NoError(s.kafka.EnsureTopic(ctx, topic))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic:   topic,
		Key:     []byte("order_42"),
		Value:   []byte(`{"action":"transition"}`),
		Headers: map[string]string{"content-type": "application/json"},
	})
	s.Require().NoError(err)

	records, err := s.kafka.Collect(ctx, topic, 1, 10*time.Second)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("order_42", string(records[0].Key))
	s.Equal("content-type", records[0].Headers[0].Key)
}

func (s *ProducerIntegrationSuite) TestPingAndHealth() {
	s.NoError(s.producer.Ping(context.Background()))
	s.NoError(kafka.NewHealthChecker(s.producer).Check(context.Background()))
}

func (s *ProducerIntegrationSuite) TestClosedProducerRejects() {
	cfg := kafka.DefaultProducerConfig(s.kafka.Brokers)
	p, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.Require().NoError(p.Close(time.Second))
	s.NoError(p.Close(time.Second), "second close is a no-op")

	s.ErrorIs(p.Produce(context.Background(), &producer.Message{Topic: "x"}), producer.ErrClosed)
	s.ErrorIs(p.ProduceAsync(&producer.Message{Topic: "x"}), producer.ErrClosed)
}
