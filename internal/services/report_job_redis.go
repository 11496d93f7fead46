package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisJobPrefix     = "car:report_job:"
	redisExpiredSuffix = ":expired"
	redisOpTimeout     = 5 * time.Second
)

// RedisJobStore keeps report jobs in Redis so any instance can answer status
// queries. Finished jobs get a JobRetention TTL plus a tombstone key.
type RedisJobStore struct {
	rdb *goredis.Client
}

// NewRedisJobStore connects and pings Redis.
func NewRedisJobStore(cfg *config.RedisConfig) (*RedisJobStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisJobStore(rdb), nil
}

func newRedisJobStore(rdb *goredis.Client) *RedisJobStore {
	return &RedisJobStore{rdb: rdb}
}

func jobKey(id string) string       { return redisJobPrefix + id }
func tombstoneKey(id string) string { return redisJobPrefix + id + redisExpiredSuffix }

func (s *RedisJobStore) Save(job *ReportJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if !job.Status.Terminal() {
		return s.rdb.Set(ctx, jobKey(job.ID), raw, 0).Err()
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), raw, JobRetention)
	pipe.Set(ctx, tombstoneKey(job.ID), "1", JobTombstoneRetention)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) Load(id string) (*ReportJob, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var job ReportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, true, nil
}

func (s *RedisJobStore) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.Set(ctx, tombstoneKey(id), "1", JobTombstoneRetention)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) IsExpired(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := s.rdb.Exists(ctx, tombstoneKey(id)).Result()
	return err == nil && n > 0
}

func (s *RedisJobStore) List() ([]*ReportJob, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var keys []string
	iter := s.rdb.Scan(ctx, 0, redisJobPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if key := iter.Val(); !strings.HasSuffix(key, redisExpiredSuffix) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*ReportJob, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var job ReportJob
		if err := json.Unmarshal([]byte(str), &job); err == nil {
			jobs = append(jobs, &job)
		}
	}
	return jobs, nil
}

func (s *RedisJobStore) Close() error {
	return s.rdb.Close()
}
