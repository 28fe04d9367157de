package attendance

import (
	"context"

	"go.uber.org/zap"

	"rollcall/internal/clock"
	"rollcall/internal/docstore"
)

// ScheduleResolver finds the class window in session right now.
type ScheduleResolver struct {
	store docstore.Store
	clock clock.Clock
	log   *zap.Logger
}

// NewScheduleResolver creates a resolver reading from store.
func NewScheduleResolver(store docstore.Store, clk clock.Clock, log *zap.Logger) *ScheduleResolver {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScheduleResolver{store: store, clock: clk, log: log}
}

// FindActiveWindow returns the group's active window covering the current
// minute, or nil when no class is in session. Candidates are checked in
// document id order and the first match wins.
func (r *ScheduleResolver) FindActiveWindow(ctx context.Context, ownerID, groupID string) (*ScheduleWindow, error) {
	now := r.clock.Now()
	day, hhmm := clock.Weekday(now), clock.HHMM(now)

	docs, err := r.store.Query(ctx, schedulesPath(ownerID, groupID),
		docstore.Where("dayOfWeek", docstore.Eq, day),
		docstore.Where("isActive", docstore.Eq, true),
	)
	if err != nil {
		return nil, storeErr("query schedules", err)
	}

	for _, doc := range docs {
		w := ScheduleWindow{
			ID:        doc.ID,
			DayOfWeek: doc.String("dayOfWeek", ""),
			StartTime: doc.String("startTime", ""),
			EndTime:   doc.String("endTime", ""),
			Active:    doc.Bool("isActive"),
		}
		if w.StartTime > w.EndTime {
			r.log.Debug("skipping overnight window",
				zap.String("group_id", groupID), zap.String("schedule_id", w.ID))
			continue
		}
		if w.Contains(hhmm) {
			r.log.Debug("active schedule found",
				zap.String("group_id", groupID), zap.String("schedule_id", w.ID),
				zap.String("start", w.StartTime), zap.String("end", w.EndTime))
			return &w, nil
		}
	}
	r.log.Debug("no active schedule",
		zap.String("group_id", groupID), zap.String("day", day), zap.String("time", hhmm))
	return nil, nil
}
