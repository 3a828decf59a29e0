package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/utils"
)

// UserRepo reads and writes the users table.  Sign-up also seeds the
// user's profiles and user_roles rows in the same transaction.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// SignUp describes a new account.
type SignUp struct {
	Email        string
	Password     string
	FullName     string
	UserMetadata map[string]any
	BcryptCost   int
	// Role seeds profiles.role; empty means customer.
	Role model.Role
}

// Create inserts the user, a profile with the requested role (customer by
// default) and the matching user_roles row.  The same role is written to
// app_metadata so the first token already carries it; a "role" key in
// UserMetadata is dropped because user_metadata is user-editable.
func (r *UserRepo) Create(ctx context.Context, in SignUp) (model.Account, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hash, err := utils.HashPassword(in.Password, in.BcryptCost)
	if err != nil {
		return model.Account{}, err
	}
	role := model.RoleCustomer
	if in.Role.Valid() {
		role = in.Role
	}
	userMeta, err := json.Marshal(WithoutRole(in.UserMetadata))
	if err != nil {
		return model.Account{}, fmt.Errorf("encode user_metadata: %w", err)
	}
	appMeta, err := json.Marshal(map[string]any{"role": string(role)})
	if err != nil {
		return model.Account{}, fmt.Errorf("encode app_metadata: %w", err)
	}
	id := uuid.NewString()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, app_metadata, user_metadata) VALUES (?,?,?,?,?)",
		id, email, hash, string(appMeta), string(userMeta)); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.Account{}, ErrEmailExists
		}
		return model.Account{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO profiles (id, full_name, role) VALUES (?,?,?)", id, in.FullName, string(role)); err != nil {
		return model.Account{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role) VALUES (?,?)", id, string(role)); err != nil {
		return model.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Account{}, err
	}
	return r.GetByID(ctx, id)
}

const userColumns = "id,email,password_hash,app_metadata,user_metadata,is_active,created_at,updated_at"

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetAppMetadataRole writes role into users.app_metadata.role.  An empty
// role removes the key.
func (r *UserRepo) SetAppMetadataRole(ctx context.Context, id string, role model.Role) error {
	var (
		res sql.Result
		err error
	)
	if role == "" {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE users SET app_metadata = JSON_REMOVE(COALESCE(app_metadata, JSON_OBJECT()), '$.role') WHERE id=?", id)
	} else {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE users SET app_metadata = JSON_SET(COALESCE(app_metadata, JSON_OBJECT()), '$.role', ?) WHERE id=?",
			string(role), id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for a no-op update too; only a missing row is an error.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.Account, error) {
	var (
		a                 model.Account
		appMeta, userMeta sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &appMeta, &userMeta, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	if a.AppMetadata, err = decodeMeta(appMeta); err != nil {
		return model.Account{}, fmt.Errorf("decode app_metadata: %w", err)
	}
	if a.UserMetadata, err = decodeMeta(userMeta); err != nil {
		return model.Account{}, fmt.Errorf("decode user_metadata: %w", err)
	}
	return a, nil
}

func decodeMeta(s sql.NullString) (map[string]any, error) {
	m := map[string]any{}
	if !s.Valid || s.String == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// WithoutRole copies user metadata minus any "role" key.  Roles come from
// the profile and app_metadata only.
func WithoutRole(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != "role" {
			out[k] = v
		}
	}
	return out
}
