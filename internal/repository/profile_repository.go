package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

// ProfileRepo reads and patches the profiles and user_roles tables.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// GetProfile returns the profile for userID or ErrNotFound.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p              model.Profile
		phone, address sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, full_name, phone, address, role, created_at, updated_at FROM profiles WHERE id=? LIMIT 1",
		userID).Scan(&p.UserID, &p.FullName, &phone, &address, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Phone = nullable(phone)
	p.Address = nullable(address)
	return &p, nil
}

// UpdateProfile applies the non-nil fields of upd.  A role change updates
// profiles.role and user_roles.role in one transaction so the two tables
// never disagree.  Callers decide who may change the role.
func (r *ProfileRepo) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error) {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	if upd.FullName != nil {
		sets = append(sets, "full_name=?")
		args = append(args, *upd.FullName)
	}
	if upd.Phone != nil {
		sets = append(sets, "phone=?")
		args = append(args, *upd.Phone)
	}
	if upd.Address != nil {
		sets = append(sets, "address=?")
		args = append(args, *upd.Address)
	}
	if upd.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, *upd.Role)
	}
	if len(sets) == 0 {
		return r.GetProfile(ctx, userID)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	args = append(args, userID)
	res, err := tx.ExecContext(ctx, "UPDATE profiles SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM profiles WHERE id=?", userID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
	}
	if upd.Role != nil {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role) VALUES (?,?) ON DUPLICATE KEY UPDATE role=VALUES(role)",
			userID, *upd.Role); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, userID)
}

// GetUserRole returns the user_roles row for userID or ErrNotFound.
func (r *ProfileRepo) GetUserRole(ctx context.Context, userID string) (*model.UserRole, error) {
	var ur model.UserRole
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, role, updated_at FROM user_roles WHERE user_id=? LIMIT 1",
		userID).Scan(&ur.UserID, &ur.Role, &ur.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ur, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
