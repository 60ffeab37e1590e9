package auth

import (
	"context"
	"errors"
	"fmt"

	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// LoadPrincipal builds a fresh Principal snapshot for a user id: identity,
// flags, and group memberships. The snapshot starts with an empty permission
// cache; the resolver fills it on first use.
func LoadPrincipal(ctx context.Context, db *store.Store, userID string) (*metadata.Principal, error) {
	pb := db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, db.DB,
		fmt.Sprintf("SELECT id, email, is_active, is_superuser FROM users WHERE id = %s", pb.Add(userID)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, []string{"is_active", "is_superuser"})
	}

	p := &metadata.Principal{}
	p.ID, _ = row["id"].(string)
	p.Email, _ = row["email"].(string)
	p.Active, _ = row["is_active"].(bool)
	p.Superuser, _ = row["is_superuser"].(bool)

	pb = db.Dialect.NewParamBuilder()
	groups, err := store.QueryRows(ctx, db.DB,
		fmt.Sprintf("SELECT group_id FROM group_members WHERE user_id = %s ORDER BY group_id", pb.Add(p.ID)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if gid, ok := g["group_id"].(string); ok {
			p.GroupIDs = append(p.GroupIDs, gid)
		}
	}
	return p, nil
}
