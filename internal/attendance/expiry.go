package attendance

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/clock"
	"rollcall/internal/queue"
)

// expiryGrace is added to each deadline so the sweep's strict
// expiresAt < now comparison holds when the timer fires.
const expiryGrace = time.Second

// ExpiryScheduler listens for pending notices and runs the ledger's sweep
// right after each notified deadline, so records expire on time between
// periodic sweeps.
type ExpiryScheduler struct {
	ledger *Ledger
	clock  clock.Clock
	log    *zap.Logger
	after  func(d time.Duration, f func())
}

// NewExpiryScheduler creates a scheduler driving ledger.
func NewExpiryScheduler(ledger *Ledger, clk clock.Clock, log *zap.Logger) *ExpiryScheduler {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpiryScheduler{
		ledger: ledger,
		clock:  clk,
		log:    log,
		after:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Run consumes msgs until the channel closes or ctx is done.
func (s *ExpiryScheduler) Run(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *ExpiryScheduler) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != NoticeType {
		return
	}
	var notice PendingNotice
	if err := json.Unmarshal(msg.Body, &notice); err != nil {
		s.log.Warn("malformed pending notice", zap.Error(err))
		return
	}
	wait := notice.ExpiresAt.Sub(s.clock.Now()) + expiryGrace
	if wait < 0 {
		wait = 0
	}
	s.log.Debug("scheduled expiry",
		zap.String("verification_id", notice.VerificationID), zap.Duration("in", wait))
	s.after(wait, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.ledger.ExpireStale(ctx); err != nil {
			s.log.Error("scheduled expiry failed",
				zap.String("verification_id", notice.VerificationID), zap.Error(err))
		}
	})
}
