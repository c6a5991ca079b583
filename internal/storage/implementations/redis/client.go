package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// RedisConfig holds configuration for the Redis report sink
type RedisConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	Password      string        `json:"password" mapstructure:"password"`
	DB            int           `json:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key_prefix" mapstructure:"key_prefix"`
	UseClustering bool          `json:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// RedisStorage publishes detection reports to Redis. Each run is stored as
// a JSON document, a sorted set of window scores and an entry in the run
// index.
type RedisStorage struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

var _ interfaces.ReportSink = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(config *RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis config cannot be nil")
	}

	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis address or cluster addresses are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = constants.DefaultRedisKeyPrefix
	}
	if config.TTL == 0 {
		config.TTL = constants.DefaultRedisTTL
	}

	return &RedisStorage{
		config: config,
		logger: logger,
	}, nil
}

// NewRedisStorageWithClient creates a Redis storage over an existing client
func NewRedisStorageWithClient(config *RedisConfig, client redis.UniversalClient, logger *logrus.Logger) (*RedisStorage, error) {
	storage, err := NewRedisStorage(config, logger)
	if err != nil {
		return nil, err
	}
	storage.client = client
	return storage, nil
}

// Connect establishes connection to Redis
func (r *RedisStorage) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil // Already connected
	}

	var client redis.UniversalClient

	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MaxRetries:   r.config.MaxRetries,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MaxRetries:   r.config.MaxRetries,
		})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		r.closed = true
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true

	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "CLOSE_FAILED", "Failed to close Redis connection")
	}
	return nil
}

// Publish stores the report, its window scores and an index entry in a
// single transaction. All keys expire after the configured TTL.
func (r *RedisStorage) Publish(ctx context.Context, report *models.Report) error {
	if err := r.Connect(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodePublishFailed, "Failed to encode report")
	}

	reportKey := r.generateReportKey(report.RunID)
	scoresKey := r.generateScoresKey(report.RunID)
	indexKey := r.generateIndexKey()
	members := scoreMembers(report)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, reportKey, payload, r.config.TTL)
		if len(members) > 0 {
			pipe.Del(ctx, scoresKey)
			pipe.ZAdd(ctx, scoresKey, members...)
			pipe.Expire(ctx, scoresKey, r.config.TTL)
		}
		pipe.ZAdd(ctx, indexKey, &redis.Z{
			Score:  float64(report.CreatedAt.Unix()),
			Member: report.RunID,
		})
		return nil
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodePublishFailed, "Failed to publish report to Redis")
	}

	r.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"key":    reportKey,
		"scores": len(members),
	}).Info("Published report to Redis")

	return nil
}

// scoreMembers lists the distinct ranked windows. Non-finite scores are
// stored as +Inf so they rank above every finite score.
func scoreMembers(report *models.Report) []*redis.Z {
	seen := make(map[int]bool)
	var members []*redis.Z
	add := func(windows []models.ScoredWindow) {
		for _, sw := range windows {
			if seen[sw.Index] {
				continue
			}
			seen[sw.Index] = true
			score := sw.Score
			if math.IsNaN(score) {
				score = math.Inf(1)
			}
			members = append(members, &redis.Z{Score: score, Member: strconv.Itoa(sw.Index)})
		}
	}
	add(report.Normal)
	add(report.Anomalous)
	return members
}

func (r *RedisStorage) generateReportKey(runID string) string {
	return fmt.Sprintf("%s:report:%s", r.config.KeyPrefix, runID)
}

func (r *RedisStorage) generateScoresKey(runID string) string {
	return fmt.Sprintf("%s:scores:%s", r.config.KeyPrefix, runID)
}

func (r *RedisStorage) generateIndexKey() string {
	return fmt.Sprintf("%s:runs", r.config.KeyPrefix)
}
