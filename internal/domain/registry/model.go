package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datafire-practice/patient-registry-backend/internal/domain/dictionary"
)

// DateLayout is the wire and storage form of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time-of-day component. It is encoded as
// YYYY-MM-DD in JSON.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string in %s form", DateLayout)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date %q must be in %s form", s, DateLayout)
	}
	*d = parsed
	return nil
}

// Patient is a registered person. Diseases is only populated on single reads.
type Patient struct {
	ID              uuid.UUID  `json:"id"`
	LastName        string     `json:"last_name" validate:"required,max=100,cyrillic_name"`
	FirstName       string     `json:"first_name" validate:"required,max=100,cyrillic_name"`
	MiddleName      *string    `json:"middle_name,omitempty" validate:"omitempty,max=100,cyrillic_name"`
	Gender          string     `json:"gender" validate:"required,gender"`
	BirthDate       Date       `json:"birth_date" validate:"required,not_future"`
	InsuranceNumber string     `json:"insurance_number" validate:"required,insurance_number"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Diseases        []*Disease `json:"diseases,omitempty" validate:"-"`
}

// Disease is one episode of illness recorded against a patient. Diagnosis
// carries the dictionary entry for DiagnosisCode when it resolves.
type Disease struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	DiagnosisCode   string            `json:"diagnosis_code" validate:"required,max=10"`
	Diagnosis       *dictionary.Entry `json:"diagnosis,omitempty" validate:"-"`
	StartDate       Date              `json:"start_date" validate:"required,not_future"`
	EndDate         *Date             `json:"end_date,omitempty" validate:"omitempty,not_future"`
	Prescriptions   string            `json:"prescriptions" validate:"required,not_blank,max=5000"`
	SickLeaveIssued *bool             `json:"sick_leave_issued" validate:"required"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
