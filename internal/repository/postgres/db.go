// Package postgres implements the service repositories against PostgreSQL
// using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
)

// Open connects to PostgreSQL and applies the pool settings.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is not configured")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidText         = "22P02"
)

func pgCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// jsonArg stores an empty blob as NULL.
func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func tagsArg(t domain.Tags) interface{} {
	if t == nil {
		t = domain.Tags{}
	}
	return pq.Array([]string(t))
}

// optOutColumn maps a channel to its opt-out flag.
func optOutColumn(ch domain.Channel) string {
	if ch == domain.ChannelWhatsApp {
		return "opt_out_whatsapp"
	}
	return "opt_out_sms"
}

// setList builds the SET clause of a partial update.
type setList struct {
	sets []string
	args []interface{}
}

func (s *setList) add(col string, val interface{}) {
	s.args = append(s.args, val)
	s.sets = append(s.sets, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *setList) next() string {
	return fmt.Sprintf("$%d", len(s.args)+1)
}
