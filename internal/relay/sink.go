package relay

import (
	"context"
	"errors"

	"messenger/internal/models"
)

// MultiSink hands each message to every sink in order and joins their
// errors. Nil sinks are skipped.
func MultiSink(sinks ...MessageSink) MessageSink {
	kept := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return kept
}

type multiSink []MessageSink

func (m multiSink) SaveMessage(ctx context.Context, msg models.Message) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
