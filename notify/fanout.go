package notify

import (
	"context"
	"errors"
	"sync"

	"asset_lending_tool/lending"

	"go.uber.org/zap"
)

// Fanout delivers every event to all registered sinks in order. A failing sink
// does not stop delivery to the others; the joined error is returned.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *zap.Logger
}

type namedSink struct {
	name string
	sink lending.Notifier
}

func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger}
}

// Subscribe adds a sink under a name used in logs.
func (f *Fanout) Subscribe(name string, sink lending.Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
}

func (f *Fanout) Emit(ctx context.Context, ev lending.Event) error {
	f.mu.RLock()
	sinks := make([]namedSink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.sink.Emit(ctx, ev); err != nil {
			f.logger.Error("notification sink failed",
				zap.String("sink", s.name),
				zap.String("event", string(ev.Kind)),
				zap.String("loan_id", ev.LoanID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
