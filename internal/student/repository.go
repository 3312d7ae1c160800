package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for student persistence operations.
type Repository interface {
	Create(ctx context.Context, s *Student) error
	GetByID(ctx context.Context, id int64) (*Student, error)
	List(ctx context.Context) ([]Student, error)
	ListByOwner(ctx context.Context, staffID int64) ([]Student, error)

	// Update writes the editable fields. StaffID is left unchanged.
	Update(ctx context.Context, s *Student) error
	UpdateOwner(ctx context.Context, id, staffID int64) error
	Delete(ctx context.Context, id int64) error
}

const studentColumns = `id, first_name, last_name, date_of_birth, email, phone_number,
	gender, address, staff_id, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed student repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts s and sets its ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, s *Student) error {
	now := time.Now().UTC().Truncate(time.Second)
	stamp := now.Format(time.RFC3339)

	const query = `INSERT INTO students (first_name, last_name, date_of_birth, email,
		phone_number, gender, address, staff_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		s.FirstName, s.LastName, s.DateOfBirth, nullStr(s.Email), nullStr(s.PhoneNumber),
		s.Gender, nullStr(s.Address), s.StaffID, stamp, stamp)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrOwnerNotFound
		}
		return fmt.Errorf("inserting student: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading student id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetByID retrieves a student by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Student, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	return scanStudent(row)
}

// List returns every student ordered by last name, first name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Student, error) {
	return r.query(ctx, "SELECT "+studentColumns+" FROM students ORDER BY last_name, first_name, id")
}

// ListByOwner returns the students owned by staffID.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, staffID int64) ([]Student, error) {
	return r.query(ctx,
		"SELECT "+studentColumns+" FROM students WHERE staff_id = ? ORDER BY last_name, first_name, id",
		staffID)
}

// Update modifies a student's editable fields.
func (r *SQLiteRepository) Update(ctx context.Context, s *Student) error {
	now := time.Now().UTC().Truncate(time.Second)

	const query = `UPDATE students SET first_name = ?, last_name = ?, date_of_birth = ?,
		email = ?, phone_number = ?, gender = ?, address = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		s.FirstName, s.LastName, s.DateOfBirth, nullStr(s.Email), nullStr(s.PhoneNumber),
		s.Gender, nullStr(s.Address), now.Format(time.RFC3339), s.ID)
	if err != nil {
		return fmt.Errorf("updating student %d: %w", s.ID, err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

// UpdateOwner moves a student to another staff member.
func (r *SQLiteRepository) UpdateOwner(ctx context.Context, id, staffID int64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE students SET staff_id = ?, updated_at = ? WHERE id = ?",
		staffID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrOwnerNotFound
		}
		return fmt.Errorf("reassigning student %d: %w", id, err)
	}
	return requireRow(result)
}

// Delete removes a student.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting student %d: %w", id, err)
	}
	return requireRow(result)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer rows.Close()

	students := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return students, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(sc scanner) (*Student, error) {
	var s Student
	var email, phone, address sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(&s.ID, &s.FirstName, &s.LastName, &s.DateOfBirth, &email, &phone,
		&s.Gender, &address, &s.StaffID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning student: %w", err)
	}

	s.Email = email.String
	s.PhoneNumber = phone.String
	s.Address = address.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &s, nil
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// nullStr stores empty optional fields as NULL.
func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
