package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// DirectoryUser is a portal user as the approver resolver sees it.
type DirectoryUser struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Department string
	IsActive   bool
}

// DirectoryRepository reads the user/role/permission directory maintained by
// the identity system. This service only ever reads it.
type DirectoryRepository struct {
	db *database.DB
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// FindActiveUsersWithPermission returns active users holding any role that
// grants the permission. When department is non-nil the match is additionally
// scoped to that department (focal-level approvals only).
func (r *DirectoryRepository) FindActiveUsersWithPermission(ctx context.Context, permission string, department *string) ([]*DirectoryUser, error) {
	query := `
		SELECT u.id, u.name, u.email, ur.role_name, u.department, u.is_active
		FROM directory_users u
		JOIN directory_user_roles ur ON ur.user_id = u.id
		JOIN directory_role_permissions rp ON rp.role_name = ur.role_name
		WHERE rp.permission = $1
		  AND u.is_active = TRUE
		  AND ($2::text IS NULL OR u.department = $2)
		ORDER BY u.name ASC
	`
	rows, err := r.db.Query(ctx, query, permission, department)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find users with permission")
	}
	defer rows.Close()
	return scanDirectoryUsers(rows)
}

// FindActiveUsersWithRole returns active users holding the given role.
func (r *DirectoryRepository) FindActiveUsersWithRole(ctx context.Context, role string) ([]*DirectoryUser, error) {
	query := `
		SELECT u.id, u.name, u.email, ur.role_name, u.department, u.is_active
		FROM directory_users u
		JOIN directory_user_roles ur ON ur.user_id = u.id
		WHERE ur.role_name = $1
		  AND u.is_active = TRUE
		ORDER BY u.name ASC
	`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find users with role")
	}
	defer rows.Close()
	return scanDirectoryUsers(rows)
}

// GetUser returns one user by id.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*DirectoryUser, error) {
	query := `
		SELECT u.id, u.name, u.email, COALESCE(
		           (SELECT ur.role_name FROM directory_user_roles ur
		            WHERE ur.user_id = u.id ORDER BY ur.role_name LIMIT 1), ''),
		       u.department, u.is_active
		FROM directory_users u
		WHERE u.id = $1
	`
	user, err := scanDirectoryUser(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return user, nil
}

// RoleExists reports whether a role is defined and active in the directory.
func (r *DirectoryRepository) RoleExists(ctx context.Context, role string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM directory_roles WHERE name = $1 AND is_active = TRUE)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, role).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check role")
	}
	return exists, nil
}

// CountActiveRoleMembers returns how many active users hold a role.
func (r *DirectoryRepository) CountActiveRoleMembers(ctx context.Context, role string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM directory_user_roles ur
		JOIN directory_users u ON u.id = ur.user_id
		WHERE ur.role_name = $1 AND u.is_active = TRUE
	`
	var count int
	if err := r.db.QueryRow(ctx, query, role).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count role members")
	}
	return count, nil
}

// UserHasPermission reports whether a user holds a role granting permission.
func (r *DirectoryRepository) UserHasPermission(ctx context.Context, userID, permission string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM directory_user_roles ur
			JOIN directory_role_permissions rp ON rp.role_name = ur.role_name
			JOIN directory_users u ON u.id = ur.user_id
			WHERE ur.user_id = $1 AND rp.permission = $2 AND u.is_active = TRUE
		)
	`
	var ok bool
	if err := r.db.QueryRow(ctx, query, userID, permission).Scan(&ok); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check permission")
	}
	return ok, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type directoryScanner interface {
	Scan(dest ...any) error
}

func scanDirectoryUser(row directoryScanner) (*DirectoryUser, error) {
	u := &DirectoryUser{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsActive)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanDirectoryUsers(rows pgx.Rows) ([]*DirectoryUser, error) {
	var users []*DirectoryUser
	for rows.Next() {
		u, err := scanDirectoryUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan directory user")
		}
		users = append(users, u)
	}
	return users, nil
}
