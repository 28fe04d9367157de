package docstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryQueryFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	seed := map[string]Fields{
		"c/b": {"day": "Monday", "active": true},
		"c/a": {"day": "Monday", "active": true},
		"c/c": {"day": "Monday", "active": false},
		"c/d": {"day": "Tuesday", "active": true},
	}
	for path, data := range seed {
		if err := m.Set(path, data); err != nil {
			t.Fatalf("Set(%s): %v", path, err)
		}
	}

	docs, err := m.Query(ctx, "c", Where("day", Eq, "Monday"), Where("active", Eq, true))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("unexpected result %+v", docs)
	}
}

func TestMemoryRangeOnTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })
	_ = m.Set("p/old", Fields{"expiresAt": now.Add(-time.Minute)})
	_ = m.Set("p/new", Fields{"expiresAt": now.Add(time.Minute)})
	_ = m.Set("p/none", Fields{})

	docs, err := m.Query(ctx, "p", Where("expiresAt", Lt, now))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "old" {
		t.Fatalf("unexpected result %+v", docs)
	}
}

func TestMemoryAddUpdateAndServerTimestamp(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })

	id, err := m.Add(ctx, "p", Fields{"status": "pending", "detectedAt": ServerTimestamp})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	doc, err := m.Get(ctx, Join("p", id))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got, ok := doc.Time("detectedAt"); !ok || !got.Equal(now) {
		t.Fatalf("detectedAt = %v, want %v", got, now)
	}

	if err := m.Update(ctx, doc.Path, Fields{"status": "expired"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ = m.Get(ctx, doc.Path)
	if doc.String("status", "") != "expired" {
		t.Fatalf("status = %q", doc.String("status", ""))
	}
	if _, ok := doc.Time("detectedAt"); !ok {
		t.Fatal("update must keep untouched fields")
	}
}

func TestMemoryMissingDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	if _, err := m.Get(ctx, "users/nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if err := m.Update(ctx, "users/nobody", Fields{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update err = %v, want ErrNotFound", err)
	}
}

func TestSplit(t *testing.T) {
	coll, id, err := Split("users/u1/batches/b7")
	if err != nil || coll != "users/u1/batches" || id != "b7" {
		t.Fatalf("Split = %q %q %v", coll, id, err)
	}
	for _, bad := range []string{"", "users", "users/", "/x"} {
		if _, _, err := Split(bad); err == nil {
			t.Errorf("Split(%q) expected error", bad)
		}
	}
	if parent, name := parentOf("users/u1/batches"); parent != "users/u1" || name != "batches" {
		t.Fatalf("parentOf = %q %q", parent, name)
	}
	if parent, name := parentOf("pending_verifications"); parent != "" || name != "pending_verifications" {
		t.Fatalf("parentOf = %q %q", parent, name)
	}
}

func TestDocumentTimeParsesJSONStrings(t *testing.T) {
	want := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	doc := Document{Data: Fields{"at": want.Format(time.RFC3339Nano), "bad": "yesterday"}}
	if got, ok := doc.Time("at"); !ok || !got.Equal(want) {
		t.Fatalf("Time = %v %v", got, ok)
	}
	if _, ok := doc.Time("bad"); ok {
		t.Fatal("expected unparsable string to be rejected")
	}
}

func TestBuildQuery(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	q, args, err := buildQuery("pending_verifications", []Filter{
		Where("status", Eq, "pending"),
		Where("expiresAt", Lt, at),
	})
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}
	wantParts := []string{
		"collection = $1",
		"data->'status' = $2::jsonb",
		"(data->>'expiresAt')::timestamptz < $3",
		"ORDER BY id",
	}
	for _, part := range wantParts {
		if !strings.Contains(q, part) {
			t.Errorf("query %q missing %q", q, part)
		}
	}
	if len(args) != 3 || args[1] != `"pending"` {
		t.Fatalf("args = %#v", args)
	}

	if _, _, err := buildQuery("c", []Filter{Where("x'; drop", Eq, 1)}); err == nil {
		t.Fatal("expected quoted field name to be rejected")
	}
	if _, _, err := buildQuery("c", []Filter{Where("flag", Lt, true)}); err == nil {
		t.Fatal("expected range on bool to be rejected")
	}
}
