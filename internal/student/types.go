package student

import "time"

// Gender values accepted for a student.
const (
	GenderFemale      = "female"
	GenderMale        = "male"
	GenderOther       = "other"
	GenderUnspecified = "unspecified"
)

// Student is a record owned by one staff member.
type Student struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Gender      string    `json:"gender"`
	Address     string    `json:"address,omitempty"`
	StaffID     int64     `json:"staff_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries the client-editable fields of a student. Ownership is never
// taken from input: Create uses the caller and Update keeps the current owner.
type Input struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"required,date"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	Gender      string `json:"gender" validate:"omitempty,oneof=female male other unspecified"`
	Address     string `json:"address" validate:"omitempty,max=255"`
}

// apply copies in onto s, defaulting an empty gender to unspecified.
func (in Input) apply(s *Student) {
	s.FirstName = in.FirstName
	s.LastName = in.LastName
	s.DateOfBirth = in.DateOfBirth
	s.Email = in.Email
	s.PhoneNumber = in.PhoneNumber
	s.Gender = in.Gender
	if s.Gender == "" {
		s.Gender = GenderUnspecified
	}
	s.Address = in.Address
}
