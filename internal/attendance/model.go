package attendance

import (
	"time"

	"rollcall/internal/docstore"
)

// Status is the lifecycle state of a pending verification.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
)

// DefaultTTL is how long a student has to complete the secondary check.
const DefaultTTL = 5 * time.Minute

const pendingCollection = "pending_verifications"

// ScheduleWindow is a recurring class slot of a group.
type ScheduleWindow struct {
	ID        string
	DayOfWeek string
	StartTime string // HH:MM
	EndTime   string // HH:MM
	Active    bool
}

// Contains reports whether the HH:MM time of day falls inside the window,
// both ends inclusive. Windows crossing midnight never match.
func (w ScheduleWindow) Contains(hhmm string) bool {
	return w.StartTime <= hhmm && hhmm <= w.EndTime
}

// MemberContext is a resolved student together with the class they are
// currently attending.
type MemberContext struct {
	MemberID   string
	MemberName string
	Enrollment string
	GroupID    string
	GroupName  string
	WindowID   string
	OwnerID    string
	OwnerName  string
}

// PendingVerification is the record awaiting biometric confirmation.
type PendingVerification struct {
	ID         string
	Member     MemberContext
	MACAddress string
	DetectedAt time.Time
	ExpiresAt  time.Time
	Status     Status
	VerifiedAt *time.Time
	ExpiredAt  *time.Time
}

// Detection is the outcome of a successful mark-attendance call.
type Detection struct {
	VerificationID string
	Member         MemberContext
	ExpiresIn      time.Duration
}

func ownerPath(ownerID string) string {
	return docstore.Join("users", ownerID)
}

func groupsPath(ownerID string) string {
	return docstore.Join("users", ownerID, "batches")
}

func membersPath(ownerID, groupID string) string {
	return docstore.Join("users", ownerID, "batches", groupID, "students")
}

func schedulesPath(ownerID, groupID string) string {
	return docstore.Join("users", ownerID, "batches", groupID, "schedules")
}

func verificationFields(mc MemberContext, address string, expiresAt time.Time) docstore.Fields {
	return docstore.Fields{
		"studentId":         mc.MemberID,
		"studentName":       mc.MemberName,
		"studentEnrollment": mc.Enrollment,
		"batchId":           mc.GroupID,
		"courseName":        mc.GroupName,
		"scheduleId":        mc.WindowID,
		"professorId":       mc.OwnerID,
		"professorName":     mc.OwnerName,
		"macAddress":        address,
		"date":              docstore.ServerTimestamp,
		"detectedAt":        docstore.ServerTimestamp,
		"expiresAt":         expiresAt,
		"status":            string(StatusPending),
		"verifiedAt":        nil,
	}
}

func verificationFromDoc(doc docstore.Document) PendingVerification {
	v := PendingVerification{
		ID: doc.ID,
		Member: MemberContext{
			MemberID:   doc.String("studentId", ""),
			MemberName: doc.String("studentName", ""),
			Enrollment: doc.String("studentEnrollment", ""),
			GroupID:    doc.String("batchId", ""),
			GroupName:  doc.String("courseName", ""),
			WindowID:   doc.String("scheduleId", ""),
			OwnerID:    doc.String("professorId", ""),
			OwnerName:  doc.String("professorName", ""),
		},
		MACAddress: doc.String("macAddress", ""),
		Status:     Status(doc.String("status", "")),
	}
	v.DetectedAt, _ = doc.Time("detectedAt")
	v.ExpiresAt, _ = doc.Time("expiresAt")
	if t, ok := doc.Time("verifiedAt"); ok {
		v.VerifiedAt = &t
	}
	if t, ok := doc.Time("expiredAt"); ok {
		v.ExpiredAt = &t
	}
	return v
}
