package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tollgate store.
var Migrations = migrate.NewGroup("tollgate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tollgate_plans",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_plans (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    features       TEXT NOT NULL DEFAULT '[]',
    limits         TEXT NOT NULL DEFAULT '{}',
    price_amount   INTEGER NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT 'usd',
    color          TEXT NOT NULL DEFAULT '',
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_plans_name ON tollgate_plans (name);
CREATE INDEX IF NOT EXISTS idx_tollgate_plans_price ON tollgate_plans (active, price_amount);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_organizations",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_organizations (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    slug       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_orgs_slug ON tollgate_organizations (slug);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_organizations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_subscriptions",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_subscriptions (
    id         TEXT PRIMARY KEY,
    org_id     TEXT NOT NULL,
    plan_id    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'active',
    start_date DATETIME NOT NULL,
    end_date   DATETIME NOT NULL,
    expired_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tollgate_subs_org ON tollgate_subscriptions (org_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_subs_one_active ON tollgate_subscriptions (org_id) WHERE status = 'active';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_usage",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_usage (
    id            TEXT PRIMARY KEY,
    org_id        TEXT NOT NULL,
    metric        TEXT NOT NULL,
    count         INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
    period_start  DATETIME NOT NULL,
    period_end    DATETIME NOT NULL,
    last_reset_at DATETIME,
    created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_usage_org_metric ON tollgate_usage (org_id, metric);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_usage`)
				return err
			},
		},
	)
}
