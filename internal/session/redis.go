package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"techsupport.dev/assistant/internal/core"
)

const (
	prefix         = "_SUPPORTBOT_"
	stateKeyPrefix = prefix + "state_"
	identityPrefix = prefix + "identity_"
	lockPrefix     = prefix + "lock_"

	// lockTTL bounds how long a crashed instance keeps a session locked.
	lockTTL = 30 * time.Second
)

// unlockScript deletes a lock only if it still carries the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares chat state and identities between server instances.
// Chat state expires after stateTTL of inactivity.
type RedisStore struct {
	client   *redis.Client
	stateTTL time.Duration
}

func NewRedisStore(url string, stateTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	return &RedisStore{client: redis.NewClient(opts), stateTTL: stateTTL}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, stateTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, stateTTL: stateTTL}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping failed")
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (*core.State, error) {
	var st core.State
	found, err := r.get(ctx, stateKeyPrefix+sessionID, &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStore) Save(ctx context.Context, st *core.State) error {
	return r.set(ctx, stateKeyPrefix+st.SessionID, st, r.stateTTL)
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return errors.Wrapf(r.client.Del(ctx, stateKeyPrefix+sessionID).Err(), "failed to delete session %s", sessionID)
}

func (r *RedisStore) Lock(ctx context.Context, sessionID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockPrefix+sessionID, token, lockTTL).Result()
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to lock session %s", sessionID)
	}
	return token, ok, nil
}

func (r *RedisStore) Unlock(ctx context.Context, sessionID, token string) error {
	err := unlockScript.Run(ctx, r.client, []string{lockPrefix + sessionID}, token).Err()
	return errors.Wrapf(err, "failed to unlock session %s", sessionID)
}

func (r *RedisStore) Locked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, lockPrefix+sessionID).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to check lock of session %s", sessionID)
	}
	return n > 0, nil
}

func (r *RedisStore) SetIdentity(ctx context.Context, tokenID string, id Identity, ttl time.Duration) error {
	return r.set(ctx, identityPrefix+tokenID, id, ttl)
}

func (r *RedisStore) GetIdentity(ctx context.Context, tokenID string) (*Identity, error) {
	var id Identity
	found, err := r.get(ctx, identityPrefix+tokenID, &id)
	if err != nil || !found {
		return nil, err
	}
	return &id, nil
}

func (r *RedisStore) ClearIdentity(ctx context.Context, tokenID string) error {
	return errors.Wrap(r.client.Del(ctx, identityPrefix+tokenID).Err(), "failed to clear identity")
}

func (r *RedisStore) get(ctx context.Context, key string, target interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read %s", key)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, errors.Wrapf(err, "malformed value at %s", key)
	}
	return true, nil
}

func (r *RedisStore) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode value")
	}
	return errors.Wrapf(r.client.Set(ctx, key, data, ttl).Err(), "failed to write %s", key)
}
