package cache

import (
	"net"
	"strconv"
	"time"
)

type RedisOption func(*RedisConfig)

// RedisConfig holds the connection settings shared by the lock and dedup
// stores. Every key they write starts with Prefix.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	DialTimeout  time.Duration
	Prefix       string
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		Prefix:       "signalflow",
	}
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) { c.Host, c.Port = host, port }
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) { c.Password, c.DB = password, db }
}

// WithRedisPool sets the pool size, idle floor and how long a caller waits
// for a free connection.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

func WithRedisDialTimeout(d time.Duration) RedisOption {
	return func(c *RedisConfig) { c.DialTimeout = d }
}

// WithRedisPrefix namespaces keys so several deployments can share a server.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}
