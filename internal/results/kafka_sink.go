package results

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

// KafkaSink publishes each query's records as one batch keyed by query id,
// so a query's results stay on one partition in rank order.
type KafkaSink struct {
	pub Publisher
}

func NewKafkaSink(pub Publisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

func (k *KafkaSink) Emit(ctx context.Context, queryID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	events := make([]kafka.Event, len(records))
	for i, r := range records {
		r.ScoreText = FormatScore(r.Score)
		events[i] = kafka.Event{Key: queryID, Value: r}
	}
	if err := k.pub.PublishBatch(ctx, events); err != nil {
		return sinkError("publishing results for query "+queryID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.pub.Close()
}
