package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"priority-dispatch/dispatch/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por lote / por label.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackLabels bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackLabels(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackLabels = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "dispatch:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func field(ev domain.StatsEvent) string {
	if ev.Completed {
		return "completed"
	}
	return "failed"
}

// Keys retorna as chaves que Record incrementa para o evento.
func (s *RedisStatsStore) Keys(ev domain.StatsEvent) []string {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	keys := []string{s.prefix + ":total", s.prefix + ":batch:" + ev.BatchID.String()}
	if s.bucket == "minute" {
		keys = append(keys, fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")))
	}
	if s.trackLabels {
		if l := strings.TrimSpace(ev.Label); l != "" {
			keys = append(keys, s.prefix+":label:"+l)
		}
	}
	return keys
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	f := field(ev)
	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	for _, k := range s.Keys(ev) {
		pipe.HIncrBy(ctx, k, f, 1)
		if k != totalKey && s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
	}
	batchKey := s.prefix + ":batch:" + ev.BatchID.String()
	pipe.HIncrBy(ctx, batchKey, "duration_us", ev.Duration.Microseconds())

	_, err := pipe.Exec(ctx)
	return err
}
