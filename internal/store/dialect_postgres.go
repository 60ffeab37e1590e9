package store

import (
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via the pgx stdlib driver.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string     { return "NOW()" }
func (d *PostgresDialect) TrueLiteral() string { return "TRUE" }

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	// pgx encodes a Go slice as a PostgreSQL array, so a single param suffices.
	return fmt.Sprintf("%s = ANY(%s)", field, pb.Add(values))
}

func (d *PostgresDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return fmt.Sprintf("%s != ALL(%s)", field, pb.Add(values))
}

func (d *PostgresDialect) ContainsExpr(field string, pb ParamBuilder, value any, caseInsensitive bool) string {
	ph := pb.Add(value)
	if caseInsensitive {
		return fmt.Sprintf("POSITION(LOWER(%s) IN LOWER(%s)) > 0", ph, field)
	}
	return fmt.Sprintf("POSITION(%s IN %s) > 0", ph, field)
}

func (d *PostgresDialect) StartsWithExpr(field string, pb ParamBuilder, value any, caseInsensitive bool) string {
	ph := pb.Add(value)
	if caseInsensitive {
		return fmt.Sprintf("LOWER(LEFT(%s, LENGTH(%s))) = LOWER(%s)", field, ph, ph)
	}
	return fmt.Sprintf("LEFT(%s, LENGTH(%s)) = %s", field, ph, ph)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

func (d *PostgresDialect) NeedsBoolFix() bool { return false }

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    is_active     BOOLEAN NOT NULL DEFAULT true,
    is_superuser  BOOLEAN NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_groups (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
    user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (group_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token      TEXT NOT NULL UNIQUE,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS object_grants (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    enabled     BOOLEAN NOT NULL DEFAULT true,
    actions     JSONB NOT NULL DEFAULT '[]',
    constraints JSONB,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS grant_users (
    grant_id TEXT NOT NULL REFERENCES object_grants(id) ON DELETE CASCADE,
    user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (grant_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_grant_users_user ON grant_users(user_id);

CREATE TABLE IF NOT EXISTS grant_groups (
    grant_id TEXT NOT NULL REFERENCES object_grants(id) ON DELETE CASCADE,
    group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
    PRIMARY KEY (grant_id, group_id)
);

CREATE TABLE IF NOT EXISTS grant_object_types (
    grant_id    TEXT NOT NULL REFERENCES object_grants(id) ON DELETE CASCADE,
    object_type TEXT NOT NULL,
    PRIMARY KEY (grant_id, object_type)
);
CREATE INDEX IF NOT EXISTS idx_grant_object_types_type ON grant_object_types(object_type);
`

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}
