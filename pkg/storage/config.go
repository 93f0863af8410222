// Package storage provides the persistence seams for vendorgate: the
// PostgreSQL connection manager, the Redis tag cache, and the S3 object store
// for document files.
package storage

import "time"

// Config for the storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	// MaxObjectBytes is the per-bucket upload size limit.
	MaxObjectBytes int64

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		MaxConnLifetime:  30 * time.Minute,
		MaxConnIdleTime:  5 * time.Minute,
		S3Region:         "us-east-1",
		S3Bucket:         "vendorgate-documents",
		MaxObjectBytes:   50 << 20, // 50 MiB
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL:         5 * time.Minute,
	}
}
