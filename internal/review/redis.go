package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"

	"github.com/go-redis/redis/v8"
)

// RedisStore shares open sessions between the API and the import workers.
// The session body lives in a string key; pending conflicts live in a hash
// so that claiming one is a single HDEL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisStore) conflictsKey(id string) string {
	return fmt.Sprintf("%s:session:%s:conflicts", r.prefix, id)
}

func (r *RedisStore) Create(ctx context.Context, session *model.Session) error {
	body, err := encodeBody(session)
	if err != nil {
		return err
	}

	fields := make(map[string]interface{}, len(session.Conflicts))
	for _, item := range session.Conflicts {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode conflict %s: %w", item.ID, err)
		}
		fields[item.ID] = data
	}

	sessionKey, conflictsKey := r.sessionKey(session.ID), r.conflictsKey(session.ID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, body, r.ttl)
		pipe.Del(ctx, conflictsKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, conflictsKey, fields)
			pipe.Expire(ctx, conflictsKey, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.Session, error) {
	body, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	raw, err := r.client.HGetAll(ctx, r.conflictsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	session.Conflicts = make([]model.ConflictItem, 0, len(raw))
	for conflictID, data := range raw {
		var item model.ConflictItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("failed to decode conflict %s: %w", conflictID, err)
		}
		session.Conflicts = append(session.Conflicts, item)
	}
	sortConflicts(session.Conflicts)

	return &session, nil
}

func (r *RedisStore) Update(ctx context.Context, session *model.Session) error {
	body, err := encodeBody(session)
	if err != nil {
		return err
	}

	ok, err := r.client.SetXX(ctx, r.sessionKey(session.ID), body, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) ClaimConflict(ctx context.Context, sessionID, conflictID string) (model.ConflictItem, error) {
	key := r.conflictsKey(sessionID)

	var (
		get *redis.StringCmd
		del *redis.IntCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, key, conflictID)
		del = pipe.HDel(ctx, key, conflictID)
		return nil
	})
	if err != nil && err != redis.Nil {
		return model.ConflictItem{}, err
	}
	if del.Val() == 0 {
		return model.ConflictItem{}, errors.ErrConflictNotFound
	}

	var item model.ConflictItem
	if err := json.Unmarshal([]byte(get.Val()), &item); err != nil {
		return model.ConflictItem{}, fmt.Errorf("failed to decode conflict %s: %w", conflictID, err)
	}
	return item, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.sessionKey(id), r.conflictsKey(id)).Err()
}

func encodeBody(session *model.Session) ([]byte, error) {
	body := *session
	body.Conflicts = nil
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}
	return data, nil
}
