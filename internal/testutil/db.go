// Package testutil wires the in-memory store and fixtures shared by service tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch is the fixed start time used by fake clocks in tests.
var Epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// OpenDB returns a migrated in-memory database private to the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func FakeClock() *clock.FakeClock {
	return clock.NewFakeClock(Epoch)
}

// Config returns a configuration suitable for service tests: no redis, no
// notification channels, stats cache disabled.
func Config() config.Config {
	return config.Config{
		AppName:     "referral",
		Environment: "test",
		Referral: config.ReferralConfig{
			ProductContext: "default",
			TxTimeout:      5 * time.Second,
			RewardValidity: 30 * 24 * time.Hour,
			SignupDeadline: 30 * 24 * time.Hour,
		},
		Notification: config.NotificationConfig{
			MaxAttempts: 3,
		},
		Scheduler: config.SchedulerConfig{
			BatchSize: 100,
			LockTTL:   time.Minute,
		},
	}
}
