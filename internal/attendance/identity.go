package attendance

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"rollcall/internal/docstore"
)

// AddressIndex maps a normalized hardware address to the member holding it.
// ok is false when the address is not indexed.
type AddressIndex interface {
	Lookup(ctx context.Context, address string) (groupID, memberID string, ok bool, err error)
}

// IdentityResolver finds the student behind a hardware address.
type IdentityResolver struct {
	store     docstore.Store
	schedules *ScheduleResolver
	index     AddressIndex
	log       *zap.Logger
}

// NewIdentityResolver creates a resolver. index may be nil, in which case
// every lookup scans all groups.
func NewIdentityResolver(store docstore.Store, schedules *ScheduleResolver, index AddressIndex, log *zap.Logger) *IdentityResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityResolver{store: store, schedules: schedules, index: index, log: log}
}

// NormalizeAddress returns the canonical form used for matching.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// FindMemberByHardwareAddress returns the student with the given address
// whose group has a class in session. Groups are scanned in id order and
// members in id order within a group, so the first in-session match by
// (group id, member id) wins. A match without an active window is skipped.
func (r *IdentityResolver) FindMemberByHardwareAddress(ctx context.Context, ownerID, address string) (MemberContext, error) {
	address = NormalizeAddress(address)

	if r.index != nil {
		mc, ok, err := r.fromIndex(ctx, ownerID, address)
		if err != nil {
			return MemberContext{}, err
		}
		if ok {
			return mc, nil
		}
	}

	groups, err := r.store.Query(ctx, groupsPath(ownerID))
	if err != nil {
		return MemberContext{}, storeErr("list batches", err)
	}
	for _, group := range groups {
		members, err := r.store.Query(ctx, membersPath(ownerID, group.ID),
			docstore.Where("macAddress", docstore.Eq, address))
		if err != nil {
			return MemberContext{}, storeErr("query students", err)
		}
		for _, member := range members {
			mc, ok, err := r.resolve(ctx, ownerID, group, member)
			if err != nil {
				return MemberContext{}, err
			}
			if ok {
				return mc, nil
			}
		}
	}
	return MemberContext{}, &NotFoundError{Address: address}
}

// fromIndex tries the address index. Index failures and stale entries fall
// through to the full scan.
func (r *IdentityResolver) fromIndex(ctx context.Context, ownerID, address string) (MemberContext, bool, error) {
	groupID, memberID, ok, err := r.index.Lookup(ctx, address)
	if err != nil {
		r.log.Warn("address index lookup failed", zap.String("mac", address), zap.Error(err))
		return MemberContext{}, false, nil
	}
	if !ok {
		return MemberContext{}, false, nil
	}

	member, err := r.store.Get(ctx, docstore.Join(membersPath(ownerID, groupID), memberID))
	if errors.Is(err, docstore.ErrNotFound) {
		r.log.Info("stale address index entry", zap.String("mac", address), zap.String("student_id", memberID))
		return MemberContext{}, false, nil
	}
	if err != nil {
		return MemberContext{}, false, storeErr("get student", err)
	}
	if NormalizeAddress(member.String("macAddress", "")) != address {
		r.log.Info("stale address index entry", zap.String("mac", address), zap.String("student_id", memberID))
		return MemberContext{}, false, nil
	}

	group, err := r.store.Get(ctx, docstore.Join(groupsPath(ownerID), groupID))
	if errors.Is(err, docstore.ErrNotFound) {
		return MemberContext{}, false, nil
	}
	if err != nil {
		return MemberContext{}, false, storeErr("get batch", err)
	}
	return r.resolve(ctx, ownerID, group, member)
}

func (r *IdentityResolver) resolve(ctx context.Context, ownerID string, group, member docstore.Document) (MemberContext, bool, error) {
	window, err := r.schedules.FindActiveWindow(ctx, ownerID, group.ID)
	if err != nil {
		return MemberContext{}, false, err
	}
	if window == nil {
		r.log.Info("student found but no active class",
			zap.String("student_id", member.ID), zap.String("batch_id", group.ID))
		return MemberContext{}, false, nil
	}

	ownerName := "Unknown Professor"
	owner, err := r.store.Get(ctx, ownerPath(ownerID))
	switch {
	case err == nil:
		ownerName = owner.String("displayName", ownerName)
	case !errors.Is(err, docstore.ErrNotFound):
		return MemberContext{}, false, storeErr("get owner", err)
	}

	return MemberContext{
		MemberID:   member.ID,
		MemberName: member.String("name", "Unknown"),
		Enrollment: member.String("enrollNumber", "Unknown"),
		GroupID:    group.ID,
		GroupName:  group.String("batchName", "Unknown Course"),
		WindowID:   window.ID,
		OwnerID:    ownerID,
		OwnerName:  ownerName,
	}, true, nil
}
