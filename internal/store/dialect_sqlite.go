package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via the modernc.org/sqlite driver.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string     { return "CURRENT_TIMESTAMP" }
func (d *SQLiteDialect) TrueLiteral() string { return "1" }

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		// IN over an empty set matches nothing
		return "1 = 0"
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", "))
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1 = 1"
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s NOT IN (%s)", field, strings.Join(placeholders, ", "))
}

// SQLite's LIKE is case-insensitive for ASCII, so substring matching uses
// instr() to keep case-sensitive and case-insensitive variants distinct.
func (d *SQLiteDialect) ContainsExpr(field string, pb ParamBuilder, value any, caseInsensitive bool) string {
	ph := pb.Add(value)
	if caseInsensitive {
		return fmt.Sprintf("instr(lower(%s), lower(%s)) > 0", field, ph)
	}
	return fmt.Sprintf("instr(%s, %s) > 0", field, ph)
}

func (d *SQLiteDialect) StartsWithExpr(field string, pb ParamBuilder, value any, caseInsensitive bool) string {
	ph := pb.Add(value)
	if caseInsensitive {
		return fmt.Sprintf("lower(substr(%s, 1, length(%s))) = lower(%s)", field, ph, ph)
	}
	return fmt.Sprintf("substr(%s, 1, length(%s)) = %s", field, ph, ph)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "2067") || strings.Contains(errStr, "1555") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

// --- SQLite DDL ---

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    is_active     BOOLEAN NOT NULL DEFAULT 1,
    is_superuser  BOOLEAN NOT NULL DEFAULT 0,
    created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_groups (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS object_grants (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    enabled     BOOLEAN NOT NULL DEFAULT 1,
    actions     TEXT NOT NULL DEFAULT '[]',
    constraints TEXT,
    created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}
