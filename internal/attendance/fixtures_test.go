package attendance

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/docstore"
)

const testOwner = "prof-1"

// monday0945 is Monday 2024-03-04 09:45 at +05:30.
var monday0945 = time.Date(2024, 3, 4, 9, 45, 0, 0, clock.Location)

func newTestStore(t *testing.T, now time.Time) *docstore.Memory {
	t.Helper()
	m := docstore.NewMemory(func() time.Time { return now })
	mustSet(t, m, ownerPath(testOwner), docstore.Fields{"displayName": "Dr. Rao"})
	return m
}

func mustSet(t *testing.T, m *docstore.Memory, path string, data docstore.Fields) {
	t.Helper()
	if err := m.Set(path, data); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func addGroup(t *testing.T, m *docstore.Memory, groupID, name string) {
	t.Helper()
	mustSet(t, m, docstore.Join(groupsPath(testOwner), groupID), docstore.Fields{"batchName": name})
}

func addMember(t *testing.T, m *docstore.Memory, groupID, memberID, name, enroll, mac string) {
	t.Helper()
	data := docstore.Fields{"name": name, "enrollNumber": enroll}
	if mac != "" {
		data["macAddress"] = mac
	}
	mustSet(t, m, docstore.Join(membersPath(testOwner, groupID), memberID), data)
}

func addWindow(t *testing.T, m *docstore.Memory, groupID, windowID, day, start, end string, active bool) {
	t.Helper()
	mustSet(t, m, docstore.Join(schedulesPath(testOwner, groupID), windowID), docstore.Fields{
		"dayOfWeek": day,
		"startTime": start,
		"endTime":   end,
		"isActive":  active,
	})
}

// failingStore fails every call whose collection or path has the prefix.
type failingStore struct {
	docstore.Store
	prefix string
	err    error
}

func (f *failingStore) fail(p string) bool {
	return len(p) >= len(f.prefix) && p[:len(f.prefix)] == f.prefix
}

func (f *failingStore) Get(ctx context.Context, path string) (docstore.Document, error) {
	if f.fail(path) {
		return docstore.Document{}, f.err
	}
	return f.Store.Get(ctx, path)
}

func (f *failingStore) Query(ctx context.Context, coll string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if f.fail(coll) {
		return nil, f.err
	}
	return f.Store.Query(ctx, coll, filters...)
}

func (f *failingStore) Add(ctx context.Context, coll string, data docstore.Fields) (string, error) {
	if f.fail(coll) {
		return "", f.err
	}
	return f.Store.Add(ctx, coll, data)
}

func (f *failingStore) Update(ctx context.Context, path string, data docstore.Fields) error {
	if f.fail(path) {
		return f.err
	}
	return f.Store.Update(ctx, path, data)
}
