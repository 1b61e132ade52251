package mq

import (
	"context"
	"time"
)

// MessageQueue is the queue abstraction used by the judge service.
type MessageQueue interface {
	Producer
	Consumer

	Close() error
}

// Producer publishes messages.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages of subscribed topics to handlers.
type Consumer interface {
	// SubscribeWithOptions registers handler for topic. The limiter, when not nil,
	// gates fetching so that no more than its capacity of messages is in flight.
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions, limiter FetchLimiter) error

	Start() error
	Stop() error
}

// FetchLimiter bounds the number of in-flight messages of a subscription.
type FetchLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// Message represents a message in the queue
type Message struct {
	ID      string            `json:"id"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`

	Timestamp time.Time `json:"timestamp"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Expiration drops the message when it is consumed later than Timestamp+Expiration
	Expiration time.Duration `json:"expiration"`
}

// HandlerFunc processes one message. A non-nil error triggers a retry.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	ConsumerGroup string

	// Concurrency sets the number of concurrent handler goroutines
	Concurrency int

	MaxRetries int
	RetryDelay time.Duration

	// DeadLetterTopic receives messages that exhausted their retries
	DeadLetterTopic string

	MessageTTL time.Duration
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:       body,
		Headers:    make(map[string]string),
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
