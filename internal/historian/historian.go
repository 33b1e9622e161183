// internal/historian/historian.go pops game action records off the Redis queue
// and persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/cache"
	"github.com/sirupsen/logrus"
)

// Source yields queued action records. Pop returns (nil, nil) when nothing
// arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*cache.GameActionRecord, error)
}

// Sink persists action records.
type Sink interface {
	InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error
	MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// Service batches records from a Source into a Sink.
type Service struct {
	source Source
	sink   Sink
	logger *logrus.Entry

	BatchSize   int
	FlushDelay  time.Duration
	PopTimeout  time.Duration
	Inactivity  time.Duration // games idle this long are marked abandoned; 0 disables
	SweepPeriod time.Duration
	MaxFailures int // rejections before a record is dropped

	batch        []pendingRecord
	dropped      int
	lastActivity map[uuid.UUID]time.Time
	now          func() time.Time
}

// pendingRecord is a buffered record and how often the sink has rejected it
// while accepting others.
type pendingRecord struct {
	rec      cache.GameActionRecord
	failures int
}

// NewService builds a Service with the usual defaults.
func NewService(source Source, sink Sink, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:       source,
		sink:         sink,
		logger:       logger.WithField("component", "historian"),
		BatchSize:    20,
		FlushDelay:   500 * time.Millisecond,
		PopTimeout:   time.Second,
		Inactivity:   10 * time.Minute,
		SweepPeriod:  time.Minute,
		MaxFailures:  3,
		lastActivity: make(map[uuid.UUID]time.Time),
		now:          time.Now,
	}
}

// Run consumes until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.FlushDelay <= 0 {
		s.FlushDelay = 500 * time.Millisecond
	}
	flush := time.NewTicker(s.FlushDelay)
	defer flush.Stop()
	sweepPeriod := s.SweepPeriod
	if sweepPeriod <= 0 {
		sweepPeriod = time.Minute
	}
	sweep := time.NewTicker(sweepPeriod)
	defer sweep.Stop()

	s.logger.Info("historian started")
	defer s.logger.Info("historian stopped")

	for {
		select {
		case <-ctx.Done():
			// final flush gets its own deadline since ctx is already done
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flush(flushCtx)
			cancel()
			return nil
		case <-flush.C:
			s.flush(ctx)
		case <-sweep.C:
			s.sweepInactive(ctx)
		default:
			rec, err := s.source.Pop(ctx, s.PopTimeout)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.WithError(err).Error("pop failed")
				s.backoff(ctx)
				continue
			}
			if rec == nil {
				continue
			}
			s.append(ctx, *rec)
		}
	}
}

func (s *Service) append(ctx context.Context, rec cache.GameActionRecord) {
	if rec.ActionType == cache.EndGameAction {
		delete(s.lastActivity, rec.GameID)
	} else {
		s.lastActivity[rec.GameID] = s.now()
	}
	s.batch = append(s.batch, pendingRecord{rec: rec})
	if len(s.batch) >= s.BatchSize {
		s.flush(ctx)
	}
}

// flush writes the buffered batch. When the batch is refused the records are
// retried one at a time: if the sink takes none of them it is treated as down
// and everything stays buffered, otherwise each rejected record counts a
// failure and is dropped after MaxFailures.
func (s *Service) flush(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	records := make([]cache.GameActionRecord, len(s.batch))
	for i, p := range s.batch {
		records[i] = p.rec
	}
	err := s.sink.InsertGameActions(ctx, records)
	if err == nil {
		s.logger.Debugf("Flushed %d actions to DB.", len(records))
		s.batch = s.batch[:0]
		return
	}
	s.logger.WithError(err).Warnf("flush of %d actions failed, retrying one by one", len(records))

	var (
		rejected []pendingRecord
		written  int
	)
	for _, p := range s.batch {
		if err := s.sink.InsertGameActions(ctx, []cache.GameActionRecord{p.rec}); err != nil {
			rejected = append(rejected, p)
			continue
		}
		written++
	}
	if written == 0 {
		// nothing went through, so no single record is to blame
		s.batch = rejected
		s.logger.WithError(err).Errorf("sink rejected all %d actions, keeping them", len(rejected))
		return
	}

	s.batch = s.batch[:0]
	for _, p := range rejected {
		p.failures++
		if s.MaxFailures > 0 && p.failures >= s.MaxFailures {
			s.dropped++
			s.logger.WithFields(logrus.Fields{
				"game":   p.rec.GameID,
				"action": p.rec.ActionType,
				"index":  p.rec.ActionIndex,
			}).Errorf("Dropping action after %d failed writes", p.failures)
			continue
		}
		s.batch = append(s.batch, p)
	}
	s.logger.Infof("Flushed %d actions to DB, %d held back.", written, len(s.batch))
}

func (s *Service) sweepInactive(ctx context.Context) {
	if s.Inactivity <= 0 {
		return
	}
	now := s.now()
	for gameID, last := range s.lastActivity {
		if now.Sub(last) <= s.Inactivity {
			continue
		}
		if err := s.sink.MarkGameAbandoned(ctx, gameID); err != nil {
			s.logger.WithError(err).Warnf("failed to mark game %v abandoned", gameID)
			continue
		}
		s.logger.Infof("Marked game %v as abandoned due to inactivity.", gameID)
		delete(s.lastActivity, gameID)
	}
}

func (s *Service) backoff(ctx context.Context) {
	t := time.NewTimer(s.PopTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Pending reports how many records are buffered but not yet written.
func (s *Service) Pending() int {
	return len(s.batch)
}

// Dropped reports how many records were given up on after MaxFailures.
func (s *Service) Dropped() int {
	return s.dropped
}
