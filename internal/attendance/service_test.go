package attendance

import (
	"context"
	"errors"
	"testing"

	"rollcall/internal/clock"
	"rollcall/internal/docstore"
)

func newTestService(m docstore.Store, owner string) *Service {
	clk := clock.Fixed(monday0945)
	schedules := NewScheduleResolver(m, clk, nil)
	return NewService(owner, NewIdentityResolver(m, schedules, nil, nil), NewLedger(m, clk, 0, nil, nil))
}

func TestMarkAttendance(t *testing.T) {
	m := newTestStore(t, monday0945)
	addGroup(t, m, "g1", "Networks")
	addMember(t, m, "g1", "s1", "Asha", "EN001", "AA:BB:CC:DD:EE:FF")
	addWindow(t, m, "g1", "w1", "Monday", "09:00", "10:30", true)
	svc := newTestService(m, testOwner)

	det, err := svc.MarkAttendance(context.Background(), "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("MarkAttendance: %v", err)
	}
	if det.VerificationID == "" || det.ExpiresIn != DefaultTTL || det.Member.Enrollment != "EN001" {
		t.Fatalf("detection = %+v", det)
	}

	again, err := svc.MarkAttendance(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil || again.VerificationID != det.VerificationID {
		t.Fatalf("repeat = %+v, %v", again, err)
	}
}

func TestMarkAttendanceErrors(t *testing.T) {
	m := newTestStore(t, monday0945)

	_, err := newTestService(m, testOwner).MarkAttendance(context.Background(), "  ")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Error() != "macAddress is required" {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	_, err = newTestService(m, "").MarkAttendance(context.Background(), "AA:BB")
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}

	_, err = newTestService(m, testOwner).MarkAttendance(context.Background(), "AA:BB")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}
