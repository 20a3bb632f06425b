package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/domain/errors"
	"github.com/davidleathers/clinical-access-backend/internal/domain/session"
)

const (
	sessionKeyPrefix  = "session:"
	userSessionPrefix = "user_sessions:"
)

// SessionStore keeps session records in Redis with a per-user index
// set. Records carry a TTL slightly past the session's hard expiry so
// Redis reclaims abandoned entries on its own.
type SessionStore struct {
	client *redis.Client
	logger *zap.Logger
	// Extra TTL past ExpiresAt so terminated-but-graced sessions
	// remain readable.
	ttlSlack time.Duration
}

// NewSessionStore returns a Redis-backed session store.
func NewSessionStore(client *redis.Client, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		logger:   logger.Named("session_store"),
		ttlSlack: time.Hour,
	}
}

func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("marshaling session %s", sess.ID)).WithCause(err)
	}

	ttl := time.Until(sess.ExpiresAt) + s.ttlSlack
	if ttl <= 0 {
		ttl = s.ttlSlack
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKeyPrefix+sess.ID, data, ttl)
	pipe.SAdd(ctx, userSessionPrefix+sess.UserID, sess.ID)
	pipe.Expire(ctx, userSessionPrefix+sess.UserID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewInternalError(fmt.Sprintf("storing session %s", sess.ID)).WithCause(err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("fetching session %s", id)).WithCause(err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("unmarshaling session %s", id)).WithCause(err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	if sess != nil {
		pipe.SRem(ctx, userSessionPrefix+sess.UserID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewInternalError(fmt.Sprintf("deleting session %s", id)).WithCause(err)
	}
	return nil
}

func (s *SessionStore) UserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, userSessionPrefix+userID).Result()
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("listing sessions for user %s", userID)).WithCause(err)
	}

	// The index can outlive expired session keys. Filter out members
	// whose record is gone and repair the set as we go.
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			if err := s.client.SRem(ctx, userSessionPrefix+userID, id).Err(); err != nil {
				s.logger.Warn("failed to prune stale session index entry",
					zap.String("user_id", userID),
					zap.String("session_id", id),
					zap.Error(err),
				)
			}
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

func (s *SessionStore) All(ctx context.Context) ([]*session.Session, error) {
	var sessions []*session.Session
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, errors.NewInternalError(fmt.Sprintf("fetching %s", iter.Val())).WithCause(err)
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			s.logger.Warn("skipping corrupt session record",
				zap.String("key", iter.Val()),
				zap.Error(err),
			)
			continue
		}
		sessions = append(sessions, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.NewInternalError("scanning sessions").WithCause(err)
	}
	return sessions, nil
}
