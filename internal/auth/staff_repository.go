package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/student-registry/internal/infrastructure/database"
)

const staffColumns = "id, username, email, password_hash, role, created_at, updated_at"

// SQLiteStaffRepository implements StaffRepository using SQLite.
type SQLiteStaffRepository struct {
	db *sql.DB
}

// NewStaffRepository creates a new SQLite-backed staff repository.
func NewStaffRepository(db *sql.DB) *SQLiteStaffRepository {
	return &SQLiteStaffRepository{db: db}
}

// Register inserts staff with the role chosen by assign. The count and the
// insert share one immediate transaction (see database.Config.DSN).
func (r *SQLiteStaffRepository) Register(ctx context.Context, staff *Staff, assign RoleAssigner) error {
	now := time.Now().UTC().Truncate(time.Second)
	stamp := now.Format(time.RFC3339)

	err := database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM staff").Scan(&existing); err != nil {
			return fmt.Errorf("counting staff: %w", err)
		}

		role, err := assign(existing)
		if err != nil {
			return err
		}
		if !role.Valid() {
			return malformed("role %d contains unknown bits", role)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO staff (username, email, password_hash, role, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			staff.Username, staff.Email, staff.PasswordHash, int64(role), stamp, stamp,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("inserting staff: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading staff id: %w", err)
		}
		staff.ID = id
		staff.Role = role
		return nil
	})
	if err != nil {
		return err
	}

	staff.CreatedAt = now
	staff.UpdatedAt = now
	return nil
}

// GetByID retrieves a staff member by id.
func (r *SQLiteStaffRepository) GetByID(ctx context.Context, id int64) (*Staff, error) {
	return scanStaff(r.db.QueryRowContext(ctx, "SELECT "+staffColumns+" FROM staff WHERE id = ?", id))
}

// GetByEmail retrieves a staff member by normalised email.
func (r *SQLiteStaffRepository) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	return scanStaff(r.db.QueryRowContext(ctx, "SELECT "+staffColumns+" FROM staff WHERE email = ?", email))
}

// EmailExists reports whether email is already registered.
func (r *SQLiteStaffRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM staff WHERE email = ?", email).Scan(&n); err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return n > 0, nil
}

// List returns all staff ordered by id.
func (r *SQLiteStaffRepository) List(ctx context.Context) ([]Staff, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+staffColumns+" FROM staff ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing staff: %w", err)
	}
	defer rows.Close()

	members := []Staff{}
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staff: %w", err)
	}
	return members, nil
}

// Update changes username and email. Role and password have their own methods.
func (r *SQLiteStaffRepository) Update(ctx context.Context, staff *Staff) error {
	now := time.Now().UTC().Truncate(time.Second)

	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET username = ?, email = ?, updated_at = ? WHERE id = ?`,
		staff.Username, staff.Email, now.Format(time.RFC3339), staff.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("updating staff: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	staff.UpdatedAt = now
	return nil
}

// UpdatePassword replaces a staff member's password hash.
func (r *SQLiteStaffRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(result)
}

// UpdateRole replaces a staff member's permission bits.
func (r *SQLiteStaffRepository) UpdateRole(ctx context.Context, id int64, role Permission) error {
	if !role.Valid() {
		return malformed("role %d contains unknown bits", role)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET role = ?, updated_at = ? WHERE id = ?`,
		int64(role), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	return requireRow(result)
}

// Delete removes a staff member, first moving their students to reassignTo
// when it is positive.
func (r *SQLiteStaffRepository) Delete(ctx context.Context, id, reassignTo int64) (int64, error) {
	var affected int64

	err := database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM staff WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("checking staff: %w", err)
		}
		if exists == 0 {
			return ErrStaffNotFound
		}

		if reassignTo > 0 {
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM staff WHERE id = ?", reassignTo).Scan(&exists); err != nil {
				return fmt.Errorf("checking reassignment target: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: reassignment target", ErrStaffNotFound)
			}
			result, err := tx.ExecContext(ctx,
				"UPDATE students SET staff_id = ?, updated_at = ? WHERE staff_id = ?",
				reassignTo, time.Now().UTC().Format(time.RFC3339), id,
			)
			if err != nil {
				return fmt.Errorf("reassigning students: %w", err)
			}
			affected, _ = result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		} else {
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM students WHERE staff_id = ?", id).Scan(&affected); err != nil {
				return fmt.Errorf("counting students: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM staff WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting staff: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Count returns the number of staff members.
func (r *SQLiteStaffRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM staff").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting staff: %w", err)
	}
	return count, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStaff(s scanner) (*Staff, error) {
	var st Staff
	var role int64
	var createdAt, updatedAt string

	if err := s.Scan(&st.ID, &st.Username, &st.Email, &st.PasswordHash, &role, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("scanning staff: %w", err)
	}

	st.Role = Permission(role)
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &st, nil
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrStaffNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
