package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the engine's system tables and seeds the initial
// superuser if the users table is empty.
func (s *Store) Bootstrap(ctx context.Context, log zerolog.Logger) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedSuperuser(ctx, log); err != nil {
		return fmt.Errorf("seed superuser: %w", err)
	}
	return nil
}

func (s *Store) seedSuperuser(ctx context.Context, log zerolog.Logger) error {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO users (id, email, password_hash, is_active, is_superuser) VALUES (%s, %s, %s, %s, %s)`,
		pb.Add(uuid.New().String()), pb.Add("admin@localhost"), pb.Add(string(hash)), pb.Add(true), pb.Add(true),
	)
	if _, err := s.DB.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return err
	}

	log.Warn().Msg("Default superuser created (admin@localhost / changeme); change the password immediately.")
	return nil
}
