package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg_code", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: reward_ledger_entries.referral_id"), want: true},
		{name: "mysql", err: errors.New("Error 1062 (23000): Duplicate entry"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestWrapTransient(t *testing.T) {
	assert.Nil(t, WrapTransient(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, WrapTransient(plain))

	for _, err := range []error{
		context.DeadlineExceeded,
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "55P03"},
		errors.New("database is locked"),
	} {
		wrapped := WrapTransient(err)
		assert.ErrorIs(t, wrapped, ErrTransient)
		assert.ErrorIs(t, wrapped, err)
		assert.True(t, IsTransient(wrapped))
	}
}
