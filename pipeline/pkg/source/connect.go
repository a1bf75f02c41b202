package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

const DefaultPort = 3306

// ErrConnection marks failures to reach or authenticate against the operational store.
var ErrConnection = errors.New("source connection failed")

// ConnectionError is returned by Connect. It matches ErrConnection with errors.Is.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("source: connect: %v", e.Err)
	}
	return fmt.Sprintf("source: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// Config holds the operational store credentials.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func (cfg *Config) Validate() error {
	var missing []error
	if cfg.Host == "" {
		missing = append(missing, errors.New("host is required"))
	}
	if cfg.User == "" {
		missing = append(missing, errors.New("user is required"))
	}
	if cfg.Password == "" {
		missing = append(missing, errors.New("password is required"))
	}
	if cfg.Database == "" {
		missing = append(missing, errors.New("database is required"))
	}
	if len(missing) > 0 {
		return errors.Join(missing...)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	return nil
}

func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// DSN returns the driver config. Date-times are left as text so that malformed source values
// reach cleaning instead of failing the scan.
func (cfg Config) DSN() *mysql.Config {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = cfg.Addr()
	c.DBName = cfg.Database
	c.ParseTime = false
	c.Loc = time.UTC
	c.Timeout = cfg.ConnectTimeout
	c.ReadTimeout = cfg.ReadTimeout
	return c
}

// Connect opens and verifies a connection to the operational store. Every failure is a
// *ConnectionError; it is not retried here.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConnectionError{Err: err}
	}

	connector, err := mysql.NewConnector(cfg.DSN())
	if err != nil {
		return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
	}
	return db, nil
}
