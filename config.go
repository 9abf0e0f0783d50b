package redproxy

import (
	"fmt"
	"net"
	"time"

	"github.com/redis/rueidis"
)

// Config describes a store connection in plain settings, for callers that
// load connection parameters from configuration rather than constructing a
// rueidis.ClientOption themselves.
type Config struct {
	// Address lists the store endpoints ("host:port"). Required.
	Address []string

	// Username and Password authenticate the connection. Optional.
	Username string
	Password string

	// DB selects the logical database. Must not be negative.
	DB int

	// PoolSize bounds the connection pool used for blocking commands.
	// Zero keeps the client default.
	PoolSize int

	// Timeout applies to dialing and to each command write.
	// Zero keeps the client defaults.
	Timeout time.Duration
}

// ClientOption translates the Config into a validated rueidis.ClientOption.
func (c Config) ClientOption() (rueidis.ClientOption, error) {
	if len(c.Address) == 0 {
		return rueidis.ClientOption{}, fmt.Errorf("%w: Address must list at least one endpoint", ErrConfiguration)
	}
	if c.DB < 0 {
		return rueidis.ClientOption{}, fmt.Errorf("%w: DB must not be negative", ErrConfiguration)
	}
	if c.PoolSize < 0 {
		return rueidis.ClientOption{}, fmt.Errorf("%w: PoolSize must not be negative", ErrConfiguration)
	}
	if c.Timeout < 0 {
		return rueidis.ClientOption{}, fmt.Errorf("%w: Timeout must not be negative", ErrConfiguration)
	}

	opt := rueidis.ClientOption{
		InitAddress: c.Address,
		Username:    c.Username,
		Password:    c.Password,
		SelectDB:    c.DB,
	}
	if c.PoolSize > 0 {
		opt.BlockingPoolSize = c.PoolSize
	}
	if c.Timeout > 0 {
		opt.Dialer = net.Dialer{Timeout: c.Timeout}
		opt.ConnWriteTimeout = c.Timeout
	}
	return opt, nil
}

// NewFromConfig creates a CacheCoordinator from a Config.
func NewFromConfig(cfg Config, opt Options) (*CacheCoordinator, error) {
	clientOption, err := cfg.ClientOption()
	if err != nil {
		return nil, err
	}
	return New(clientOption, opt)
}
