package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/goliatone/go-method-cache/cache"
)

// EnvPrefix prefixes every environment variable read by Load,
// e.g. METHODCACHE_BACKEND or METHODCACHE_REDIS_ADDR.
const EnvPrefix = "METHODCACHE"

// Load reads cache settings from the file at path and from the environment,
// on top of cache.DefaultConfig, and validates the result. An empty path
// skips the file; environment variables win over the file.
//
// Per-cache TTLs live under cache_ttls as name: duration pairs. Viper lower
// cases keys, so cache names there should already be snake_case.
func Load(path string) (cache.Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load with a caller supplied viper instance.
func LoadWith(v *viper.Viper, path string) (cache.Config, error) {
	setDefaults(v, cache.DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cache.Config{}, fmt.Errorf("read cache config %s: %w", path, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return cache.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return cache.Config{}, fmt.Errorf("invalid cache config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d cache.Config) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("key_strategy", d.KeyStrategy)
	v.SetDefault("key_prefix", d.KeyPrefix)
	v.SetDefault("key_error_policy", d.KeyErrorPolicy)
	v.SetDefault("ttl", d.TTL)

	v.SetDefault("local.capacity", d.Capacity)
	v.SetDefault("local.num_shards", d.NumShards)
	v.SetDefault("local.eviction_percentage", d.EvictionPercentage)
	v.SetDefault("local.missing_record_storage", d.MissingRecordStorage)
	v.SetDefault("local.eviction_interval", d.EvictionInterval)
	v.SetDefault("local.early_refresh.enabled", d.EarlyRefresh != nil)
	if d.EarlyRefresh != nil {
		v.SetDefault("local.early_refresh.min_async", d.EarlyRefresh.MinAsyncRefreshTime)
		v.SetDefault("local.early_refresh.max_async", d.EarlyRefresh.MaxAsyncRefreshTime)
		v.SetDefault("local.early_refresh.sync", d.EarlyRefresh.SyncRefreshTime)
		v.SetDefault("local.early_refresh.retry_base_delay", d.EarlyRefresh.RetryBaseDelay)
	}

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.username", d.Redis.Username)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	v.SetDefault("redis.scan_count", d.Redis.ScanCount)
}

func fromViper(v *viper.Viper) (cache.Config, error) {
	cfg := cache.Config{
		Backend:        v.GetString("backend"),
		KeyStrategy:    v.GetString("key_strategy"),
		KeyPrefix:      v.GetString("key_prefix"),
		KeyErrorPolicy: v.GetString("key_error_policy"),
		TTL:            v.GetDuration("ttl"),

		Capacity:             v.GetInt("local.capacity"),
		NumShards:            v.GetInt("local.num_shards"),
		EvictionPercentage:   v.GetInt("local.eviction_percentage"),
		MissingRecordStorage: v.GetBool("local.missing_record_storage"),
		EvictionInterval:     v.GetDuration("local.eviction_interval"),

		Redis: cache.RedisConfig{
			Addr:         v.GetString("redis.addr"),
			Username:     v.GetString("redis.username"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			PoolSize:     v.GetInt("redis.pool_size"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			ScanCount:    v.GetInt64("redis.scan_count"),
		},
	}

	if v.GetBool("local.early_refresh.enabled") {
		cfg.EarlyRefresh = &cache.EarlyRefreshConfig{
			MinAsyncRefreshTime: v.GetDuration("local.early_refresh.min_async"),
			MaxAsyncRefreshTime: v.GetDuration("local.early_refresh.max_async"),
			SyncRefreshTime:     v.GetDuration("local.early_refresh.sync"),
			RetryBaseDelay:      v.GetDuration("local.early_refresh.retry_base_delay"),
		}
	}

	if ttls := v.GetStringMapString("cache_ttls"); len(ttls) > 0 {
		cfg.CacheTTLs = make(map[string]time.Duration, len(ttls))
		for name, raw := range ttls {
			ttl, err := time.ParseDuration(raw)
			if err != nil {
				return cache.Config{}, fmt.Errorf("cache_ttls.%s: %w", name, err)
			}
			cfg.CacheTTLs[name] = ttl
		}
	}

	return cfg, nil
}
