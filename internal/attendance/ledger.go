package attendance

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/clock"
	"rollcall/internal/docstore"
	"rollcall/internal/queue"
)

// Ledger records pending verifications and expires them.
//
// The duplicate check in RecordDetection reads then writes without a
// transaction. Two simultaneous detections of the same student can both
// miss the existing record and create two pending verifications; this is
// accepted and left to the consumer of the records.
type Ledger struct {
	store  docstore.Store
	clock  clock.Clock
	ttl    time.Duration
	notify queue.Queue
	log    *zap.Logger
}

// NewLedger creates a ledger. notify may be nil.
func NewLedger(store docstore.Store, clk clock.Clock, ttl time.Duration, notify queue.Queue, log *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, clock: clk, ttl: ttl, notify: notify, log: log}
}

// TTL is the verification window granted to new records.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// RecordDetection returns the id of the student's pending verification for
// the window, creating it unless one was already detected today.
func (l *Ledger) RecordDetection(ctx context.Context, mc MemberContext, address string) (string, error) {
	now := l.clock.Now()
	expiresAt := now.Add(l.ttl)

	existing, err := l.store.Query(ctx, pendingCollection,
		docstore.Where("studentEnrollment", docstore.Eq, mc.Enrollment),
		docstore.Where("scheduleId", docstore.Eq, mc.WindowID),
		docstore.Where("status", docstore.Eq, string(StatusPending)),
	)
	if err != nil {
		return "", storeErr("query pending verifications", err)
	}
	for _, doc := range existing {
		detectedAt, ok := doc.Time("detectedAt")
		if ok && clock.SameDay(detectedAt, now) {
			l.log.Info("pending verification already exists",
				zap.String("verification_id", doc.ID), zap.String("enrollment", mc.Enrollment))
			return doc.ID, nil
		}
	}

	address = NormalizeAddress(address)
	id, err := l.store.Add(ctx, pendingCollection, verificationFields(mc, address, expiresAt))
	if err != nil {
		return "", storeErr("create pending verification", err)
	}
	l.log.Info("created pending verification",
		zap.String("verification_id", id), zap.String("enrollment", mc.Enrollment),
		zap.Time("expires_at", expiresAt))

	l.publish(ctx, id, mc, expiresAt)
	return id, nil
}

// ExpireStale marks every pending verification past its expiry as expired
// and returns how many were updated. Records already transitioned are not
// touched, so repeated calls are harmless.
func (l *Ledger) ExpireStale(ctx context.Context) (int, error) {
	now := l.clock.Now()
	stale, err := l.store.Query(ctx, pendingCollection,
		docstore.Where("status", docstore.Eq, string(StatusPending)),
		docstore.Where("expiresAt", docstore.Lt, now),
	)
	if err != nil {
		return 0, storeErr("query expired verifications", err)
	}

	count := 0
	for _, doc := range stale {
		err := l.store.Update(ctx, doc.Path, docstore.Fields{
			"status":    string(StatusExpired),
			"expiredAt": docstore.ServerTimestamp,
		})
		if err != nil {
			return count, storeErr("expire verification", err)
		}
		count++
	}
	l.log.Info("expired stale verifications", zap.Int("count", count))
	return count, nil
}

// Get returns a single verification record.
func (l *Ledger) Get(ctx context.Context, id string) (PendingVerification, error) {
	doc, err := l.store.Get(ctx, docstore.Join(pendingCollection, id))
	if err != nil {
		return PendingVerification{}, storeErr("get verification", err)
	}
	return verificationFromDoc(doc), nil
}

// PendingNotice is published for every newly created verification so the
// student's client can prompt for the biometric check.
type PendingNotice struct {
	VerificationID string    `json:"verificationId"`
	StudentID      string    `json:"studentId"`
	Enrollment     string    `json:"studentEnrollment"`
	CourseName     string    `json:"courseName"`
	ScheduleID     string    `json:"scheduleId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// NoticeType tags pending notices on the queue.
const NoticeType = "verification.pending"

func (l *Ledger) publish(ctx context.Context, id string, mc MemberContext, expiresAt time.Time) {
	if l.notify == nil {
		return
	}
	body, err := json.Marshal(PendingNotice{
		VerificationID: id,
		StudentID:      mc.MemberID,
		Enrollment:     mc.Enrollment,
		CourseName:     mc.GroupName,
		ScheduleID:     mc.WindowID,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		l.log.Warn("encode pending notice", zap.Error(err))
		return
	}
	if err := l.notify.Publish(ctx, queue.Message{Type: NoticeType, Body: body}); err != nil {
		l.log.Warn("publish pending notice failed", zap.String("verification_id", id), zap.Error(err))
	}
}
