// Package sink publishes serialized trees. A failed publish never leaves a
// partially written document where a previous one used to be.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/filetree/internal/logging"
	"github.com/agentic-research/filetree/internal/metrics"
)

// ErrSerialization marks a destination that could not take the document.
var ErrSerialization = errors.New("serialization failure")

// Sink is a destination for serialized trees.
type Sink interface {
	Publish(ctx context.Context, doc []byte) error
	String() string
}

// Multi publishes to every sink in order, continuing past failures.
type Multi []Sink

// Publish implements Sink. The returned error joins every failure.
func (m Multi) Publish(ctx context.Context, doc []byte) error {
	var errs []error
	for _, s := range m {
		if err := Publish(ctx, s, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) String() string { return fmt.Sprintf("multi(%d)", len(m)) }

// Publish sends doc to s and records the outcome.
func Publish(ctx context.Context, s Sink, doc []byte) error {
	err := s.Publish(ctx, doc)
	metrics.RecordPublish(s.String(), err)
	if err != nil {
		logging.Error("publish failed", logging.String("sink", s.String()), logging.Err(err))
		return err
	}
	logging.Info("published tree", logging.String("sink", s.String()), logging.Int("bytes", len(doc)))
	return nil
}
