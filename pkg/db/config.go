package db

import "time"

// Config selects the driver and sizes the pool. Type is one of postgres,
// mysql, sqlite (cgo) or sqlite-pure; for the sqlite types Name is the file path.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}
