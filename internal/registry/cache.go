package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// cacheRecord is the persisted form shared by the file and redis tiers.
type cacheRecord struct {
	URL       string                   `json:"url"`
	FetchedAt time.Time                `json:"fetchedAt"`
	Tasks     []schemas.TaskDescriptor `json:"tasks"`
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

type fileCache struct {
	dir    string
	logger *zap.Logger
}

func (c *fileCache) path(url string) string {
	return filepath.Join(c.dir, "registry_"+cacheKey(url)+".json")
}

func (c *fileCache) load(url string) (cacheRecord, bool) {
	p := c.path(url)
	data, err := os.ReadFile(p)
	if err != nil {
		return cacheRecord{}, false
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("Registry cache file corrupted, it will be ignored.", zap.String("path", p), zap.Error(err))
		return cacheRecord{}, false
	}
	// A hash collision or a hand-edited file must not serve another registry.
	if rec.URL != url {
		return cacheRecord{}, false
	}
	return rec, true
}

// save writes through a temp file so readers never see a partial record.
func (c *fileCache) save(rec cacheRecord) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("Could not create registry cache directory.", zap.String("dir", c.dir), zap.Error(err))
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("Failed to encode registry cache record.", zap.Error(err))
		return
	}
	tmp, err := os.CreateTemp(c.dir, "registry-*.tmp")
	if err != nil {
		c.logger.Warn("Could not write registry cache file.", zap.Error(err))
		return
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		c.logger.Warn("Could not write registry cache file.", zap.Error(err))
		return
	}
	if err := os.Rename(tmp.Name(), c.path(rec.URL)); err != nil {
		_ = os.Remove(tmp.Name())
		c.logger.Warn("Could not move registry cache file into place.", zap.Error(err))
	}
}

func (r *Registry) redisKey() string {
	return r.redisPrefix + cacheKey(r.url)
}

func (r *Registry) loadRedis(ctx context.Context) (cacheRecord, bool) {
	data, err := r.redis.Get(ctx, r.redisKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis registry tier unavailable.", zap.Error(err))
		}
		return cacheRecord{}, false
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.URL != r.url {
		r.logger.Warn("Ignoring unreadable redis registry record.", zap.Error(err))
		return cacheRecord{}, false
	}
	return rec, true
}

func (r *Registry) saveRedis(ctx context.Context, rec cacheRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error("Failed to encode registry cache record.", zap.Error(err))
		return
	}
	if err := r.redis.Set(ctx, r.redisKey(), data, r.ttl).Err(); err != nil {
		r.logger.Warn("Could not publish registry to redis.", zap.Error(err))
	}
}
