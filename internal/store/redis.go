package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/orchestrator"
)

const keyNS = "pdfrange"

// Redis stores each session as a hash holding the source bytes, so any
// replica can serve any session. Extraction is serialised across replicas
// with a SET NX lock.
type Redis struct {
	client  *redis.Client
	orch    *orchestrator.Orchestrator
	ttl     time.Duration
	lockTTL time.Duration
}

type RedisOptions struct {
	URL     string
	TTL     time.Duration
	LockTTL time.Duration
}

func NewRedis(ctx context.Context, orch *orchestrator.Orchestrator, opts RedisOptions) (*Redis, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	return &Redis{client: c, orch: orch, ttl: opts.TTL, lockTTL: opts.LockTTL}, nil
}

func sessionKey(id string) string { return fmt.Sprintf("%s:session:%s", keyNS, id) }
func lockKey(id string) string    { return fmt.Sprintf("%s:lock:%s", keyNS, id) }

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Create(ctx context.Context) (*orchestrator.Session, error) {
	s := r.session(newID())
	key := sessionKey(s.ID())
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "created", time.Now().UTC().Format(time.RFC3339Nano))
	r.expire(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	r.reportCount(ctx)
	return s, nil
}

func (r *Redis) Get(ctx context.Context, id string) (*orchestrator.Session, error) {
	key := sessionKey(id)
	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	// Sliding expiry: every access extends the session.
	if r.ttl > 0 {
		_ = r.client.Expire(ctx, key, r.ttl).Err()
	}

	data, ok := res["data"]
	if !ok {
		return r.session(id), nil
	}
	pages, err := strconv.Atoi(res["pages"])
	if err != nil {
		return nil, fmt.Errorf("session %s: corrupt page count %q", id, res["pages"])
	}
	src := orchestrator.NewSource(res["name"], []byte(data), pages)
	return r.session(id, orchestrator.WithSource(src)), nil
}

func (r *Redis) Save(ctx context.Context, s *orchestrator.Session) error {
	key := sessionKey(s.ID())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	pipe := r.client.TxPipeline()
	if src := s.Source(); src != nil {
		pipe.HSet(ctx, key, map[string]interface{}{
			"name":        src.Name(),
			"data":        src.Bytes(),
			"pages":       src.PageCount(),
			"fingerprint": src.Fingerprint(),
		})
	} else {
		pipe.HDel(ctx, key, "name", "data", "pages", "fingerprint")
	}
	r.expire(ctx, pipe, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKey(id), lockKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	r.reportCount(ctx)
	return nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, sessionKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (r *Redis) session(id string, opts ...orchestrator.SessionOption) *orchestrator.Session {
	opts = append(opts, orchestrator.WithGuard(&redisGuard{client: r.client, key: lockKey(id), ttl: r.lockTTL}))
	return orchestrator.NewSession(id, r.orch, opts...)
}

func (r *Redis) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

func (r *Redis) reportCount(ctx context.Context) {
	n, err := r.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session count failed")
		return
	}
	metrics.SetSessions(n)
}

// unlockScript deletes the lock only if we still own it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisGuard is an orchestrator.Guard shared by every replica. The lock
// expires after ttl so a crashed holder cannot wedge a session.
type redisGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (g *redisGuard) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, orchestrator.ErrBusy
	}
	return func() {
		// Release must outlive a cancelled request context.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(rctx, g.client, []string{g.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("lock", g.key).Msg("session lock release failed")
		}
	}, nil
}
