//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"tag_trends/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connection"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishPassCompleted() {
	cfg := s.config("publish")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	stats := &domain.PassStats{
		Date:      "2025-03-10",
		Pages:     3,
		Accepted:  40,
		Inserted:  12,
		Tags:      25,
		Snapshots: 75,
		Duration:  2 * time.Second,
	}

	err = pub.Publish(s.ctx, stats)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal(EventPassCompleted, msg.Type)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received PassMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal(EventPassCompleted, received.Event)
	s.Equal(*stats, received.Stats)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestSubscribe_DeliversEvents() {
	cfg := s.config("subscribe")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	sub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(pub.Publish(s.ctx, &domain.PassStats{Date: "2025-03-10", Inserted: 1}))

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	received := make(chan PassMessage, 1)
	err = sub.Subscribe(ctx, func(_ context.Context, msg PassMessage) error {
		received <- msg
		cancel()
		return nil
	})
	s.True(errors.Is(err, context.Canceled))

	select {
	case msg := <-received:
		s.Equal("2025-03-10", msg.Stats.Date)
		s.Equal(1, msg.Stats.Inserted)
	default:
		s.Fail("no event delivered")
	}
}

func (s *RabbitMQIntegrationSuite) TestSubscribe_DropsMalformedMessages() {
	cfg := s.config("malformed")

	sub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer sub.Close()

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	s.Require().NoError(ch.PublishWithContext(s.ctx, cfg.Exchange, cfg.RoutingKey, false, false,
		amqp.Publishing{ContentType: "application/json", Body: []byte("not json")}))
	s.Require().NoError(sub.Publish(s.ctx, &domain.PassStats{Date: "2025-03-11"}))

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	var dates []string
	_ = sub.Subscribe(ctx, func(_ context.Context, msg PassMessage) error {
		dates = append(dates, msg.Stats.Date)
		cancel()
		return nil
	})

	s.Equal([]string{"2025-03-11"}, dates)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
