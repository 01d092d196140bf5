package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
)

const (
	kafkaBacklog      = 1024
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaWriteTimeout = 5 * time.Second
)

var (
	ErrMirrorBacklogFull = errors.New("kafka mirror backlog is full")
	ErrMirrorClosed      = errors.New("kafka mirror is closed")
)

// KafkaPublisher mirrors domain events to Kafka, one topic per event type.
// Publish only queues the message; a background loop hands it to an async
// writer, so a slow or unreachable broker never holds up the caller.
type KafkaPublisher struct {
	writer      *kafka.Writer
	topicPrefix string

	pending   chan kafka.Message
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	p := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			Async:                  true,
			BatchTimeout:           kafkaBatchTimeout,
			Completion:             logFailedMirror,
		},
		topicPrefix: topicPrefix,
		pending:     make(chan kafka.Message, kafkaBacklog),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func logFailedMirror(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	topic := ""
	if len(messages) > 0 {
		topic = messages[0].Topic
	}
	log.Warnf("[Kafka] Dropped %d mirrored event(s) for %s: %v", len(messages), topic, err)
}

// Topic returns the topic an event type is written to.
func (p *KafkaPublisher) Topic(t Type) string {
	return topicFor(p.topicPrefix, t)
}

func topicFor(prefix string, t Type) string {
	topic := string(t)
	if prefix = strings.TrimSuffix(prefix, "."); prefix != "" {
		topic = prefix + "." + topic
	}
	return topic
}

// Publish queues ev for the broker. It fails fast with ErrMirrorBacklogFull
// instead of waiting when the backlog is exhausted.
func (p *KafkaPublisher) Publish(_ context.Context, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Topic: p.Topic(ev.Type),
		Key:   []byte(ev.PartitionKey()),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	select {
	case <-p.quit:
		return ErrMirrorClosed
	default:
	}
	select {
	case p.pending <- msg:
		return nil
	default:
		return ErrMirrorBacklogFull
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.pending:
			p.write(msg)
		case <-p.quit:
			for {
				select {
				case msg := <-p.pending:
					p.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaPublisher) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Warnf("[Kafka] Could not mirror event to %s: %v", msg.Topic, err)
	}
}

// Close flushes the backlog and closes the writer.
func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
		err = p.writer.Close()
	})
	return err
}
