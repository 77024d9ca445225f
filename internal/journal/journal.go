package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	sl "event_auth/internal/lib/logger"

	"github.com/google/uuid"
)

type Store interface {
	SaveJournal(ctx context.Context, id, module, component, level, message string, data []byte) error
}

// Service persists audit entries. Every write is detached and best-effort:
// a journal failure must never change the outcome of the operation that
// produced it.
type Service struct {
	log     *slog.Logger
	store   Store
	timeout time.Duration
}

func New(log *slog.Logger, store Store) *Service {
	return &Service{
		log:     log,
		store:   store,
		timeout: 5 * time.Second,
	}
}

// Save records one entry asynchronously. data may be nil.
func (s *Service) Save(module, component, level, message string, data map[string]any) {
	var raw []byte
	if data != nil {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			s.log.Warn("journal: failed to encode data", sl.Err(err))
			raw = nil
		}
	}

	id := uuid.NewString()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.store.SaveJournal(ctx, id, module, component, level, message, raw); err != nil {
			s.log.Warn("journal: failed to save entry",
				slog.String("module", module),
				slog.String("component", component),
				sl.Err(err),
			)
		}
	}()
}
