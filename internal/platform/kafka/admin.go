// Package kafka holds the franz-go plumbing shared by the audit producer and
// consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"contribgate/internal/platform/config"
)

// Topics returns the audit topic names for a prefix, one per event category.
func Topics(prefix string) []string {
	return []string{
		prefix + ".compliance",
		prefix + ".security",
		prefix + ".operations",
	}
}

// EnsureTopics creates the audit topics if they do not exist.
func EnsureTopics(ctx context.Context, cfg config.KafkaConfig) error {
	cl, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return fmt.Errorf("create kafka admin client: %w", err)
	}
	defer cl.Close()

	adm := kadm.NewClient(cl)
	resps, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, Topics(cfg.TopicPrefix)...)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for _, r := range resps.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
