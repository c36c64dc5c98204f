package cache

import "time"

// RedisOption configures a RedisCache.
type RedisOption func(*RedisConfig)

// RedisConfig holds connection settings. Snapshot L2 traffic is small and
// latency sensitive, so the defaults favor short timeouts over retries.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	Prefix       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
	MaxRetries   int
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		Prefix:       "signalview",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PingTimeout:  5 * time.Second,
		MaxRetries:   1,
	}
}

// WithRedisHost sets the server host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		if host != "" {
			c.Host = host
		}
	}
}

// WithRedisPort sets the server port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		if port > 0 {
			c.Port = port
		}
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPrefix namespaces every key as "<prefix>:<key>". Replicas that
// share snapshots must use the same prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// WithRedisTimeouts sets dial and per-command timeouts. Zero keeps the default.
func WithRedisTimeouts(dial, readWrite time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if readWrite > 0 {
			c.ReadTimeout = readWrite
			c.WriteTimeout = readWrite
		}
	}
}

// WithRedisPool sizes the connection pool.
func WithRedisPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle >= 0 {
			c.MinIdleConns = minIdle
		}
	}
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig bounds the in-process cache.
type MemoryConfig struct {
	MaxSize int
}

// WithMemoryMaxSize caps the number of entries; the least recently used one
// is evicted first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}
