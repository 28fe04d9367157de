package attendance

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/docstore"
)

// DefaultIndexKey is the Redis hash holding address -> "group/member".
const DefaultIndexKey = "attendance:mac-index"

// RedisIndex is an AddressIndex kept in a Redis hash.
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex creates an index stored under key.
func NewRedisIndex(client *redis.Client, key string) *RedisIndex {
	if key == "" {
		key = DefaultIndexKey
	}
	return &RedisIndex{client: client, key: key}
}

// Lookup returns the member indexed for address.
func (i *RedisIndex) Lookup(ctx context.Context, address string) (string, string, bool, error) {
	val, err := i.client.HGet(ctx, i.key, address).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	groupID, memberID, ok := strings.Cut(val, "/")
	if !ok || groupID == "" || memberID == "" {
		return "", "", false, nil
	}
	return groupID, memberID, true, nil
}

// Replace swaps the whole index for entries in one transaction.
func (i *RedisIndex) Replace(ctx context.Context, entries map[string]string) error {
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, i.key)
		if len(entries) > 0 {
			values := make(map[string]interface{}, len(entries))
			for addr, ref := range entries {
				values[addr] = ref
			}
			pipe.HSet(ctx, i.key, values)
		}
		return nil
	})
	return err
}

// BuildAddressIndex scans every group of the owner and returns
// address -> "group/member" for members with an address. When two members
// share an address the first by (group id, member id) is kept, matching the
// scan order of the resolver.
func BuildAddressIndex(ctx context.Context, store docstore.Store, ownerID string) (map[string]string, error) {
	groups, err := store.Query(ctx, groupsPath(ownerID))
	if err != nil {
		return nil, storeErr("list batches", err)
	}
	entries := make(map[string]string)
	for _, group := range groups {
		members, err := store.Query(ctx, membersPath(ownerID, group.ID))
		if err != nil {
			return nil, storeErr("list students", err)
		}
		for _, member := range members {
			addr := NormalizeAddress(member.String("macAddress", ""))
			if addr == "" {
				continue
			}
			if _, taken := entries[addr]; taken {
				continue
			}
			entries[addr] = group.ID + "/" + member.ID
		}
	}
	return entries, nil
}
