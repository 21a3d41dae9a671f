// Package postgres reads API tokens from PostgreSQL through pgx's database/sql driver.
package postgres

import (
	"database/sql"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pdf-export/internal/config"
)

const defaultPort = 5432

// Open returns a small pool for the token table. Connections are opened lazily.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// DSN builds a postgres:// URL from cfg. Host may carry its own port and may
// be a bracketed or bare IPv6 address.
func DSN(cfg config.PostgresConfig) (string, error) {
	switch {
	case cfg.Host == "":
		return "", errors.New("auth.postgres.host is empty")
	case cfg.Database == "":
		return "", errors.New("auth.postgres.database is empty")
	case cfg.User == "":
		return "", errors.New("auth.postgres.user is empty")
	}

	host := cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := cfg.Port
		if port == 0 {
			port = defaultPort
		}
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
	}

	u := &url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Database, User: url.User(cfg.User)}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String(), nil
}
