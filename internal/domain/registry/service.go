package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/datafire-practice/patient-registry-backend/internal/domain/dictionary"
	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

// CodeResolver looks up diagnosis codes. *dictionary.Service satisfies it.
type CodeResolver interface {
	GetByCode(ctx context.Context, code string) (*dictionary.Entry, error)
}

type Option func(*Service)

// WithClock overrides the clock used for "not in the future" checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	patients PatientRepository
	diseases DiseaseRepository
	codes    CodeResolver
	validate *validator.Validate
	now      func() time.Time
}

func NewService(patients PatientRepository, diseases DiseaseRepository, codes CodeResolver, opts ...Option) *Service {
	s := &Service{
		patients: patients,
		diseases: diseases,
		codes:    codes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validate = newValidator(func() time.Time { return s.now() })
	return s
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	if err := s.validate.Struct(p); err != nil {
		return validationError(err)
	}
	return s.patients.Create(ctx, p)
}

// GetPatient returns the patient with its diseases, newest first.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	diseases, err := s.diseases.ListAllByPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.describe(ctx, diseases...)
	p.Diseases = diseases
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	if err := s.validate.Struct(p); err != nil {
		return validationError(err)
	}
	return s.patients.Update(ctx, p)
}

// DeletePatient removes the patient and, through the foreign key, every
// disease recorded against it.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, p pagination.Params) ([]*Patient, int, error) {
	if len(p.Sort) == 0 {
		p.Sort = []pagination.Order{{Field: "last_name"}, {Field: "first_name"}}
	}
	return s.patients.List(ctx, p)
}

func normalizePatient(p *Patient) {
	p.LastName = strings.TrimSpace(p.LastName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	if p.MiddleName != nil {
		m := strings.TrimSpace(*p.MiddleName)
		if m == "" {
			p.MiddleName = nil
		} else {
			p.MiddleName = &m
		}
	}
	p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
	p.InsuranceNumber = strings.TrimSpace(p.InsuranceNumber)
	p.Diseases = nil
}

// -- Disease --

func (s *Service) CreateDisease(ctx context.Context, patientID uuid.UUID, d *Disease) error {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return err
	}
	entry, err := s.checkDisease(ctx, d)
	if err != nil {
		return err
	}
	d.PatientID = patientID
	if err := s.diseases.Create(ctx, d); err != nil {
		return err
	}
	d.Diagnosis = entry
	return nil
}

func (s *Service) GetDisease(ctx context.Context, patientID, id uuid.UUID) (*Disease, error) {
	d, err := s.ownedDisease(ctx, patientID, id)
	if err != nil {
		return nil, err
	}
	s.describe(ctx, d)
	return d, nil
}

// UpdateDisease replaces the mutable fields of d.ID. The disease must
// already belong to patientID.
func (s *Service) UpdateDisease(ctx context.Context, patientID uuid.UUID, d *Disease) error {
	if _, err := s.ownedDisease(ctx, patientID, d.ID); err != nil {
		return err
	}
	entry, err := s.checkDisease(ctx, d)
	if err != nil {
		return err
	}
	if err := s.diseases.Update(ctx, d); err != nil {
		return err
	}
	d.Diagnosis = entry
	return nil
}

func (s *Service) DeleteDisease(ctx context.Context, patientID, id uuid.UUID) error {
	if _, err := s.ownedDisease(ctx, patientID, id); err != nil {
		return err
	}
	return s.diseases.Delete(ctx, id)
}

func (s *Service) ListDiseases(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Disease, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	if len(p.Sort) == 0 {
		p.Sort = []pagination.Order{{Field: "start_date", Desc: true}}
	}
	diseases, total, err := s.diseases.ListByPatient(ctx, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	s.describe(ctx, diseases...)
	return diseases, total, nil
}

func (s *Service) ownedDisease(ctx context.Context, patientID, id uuid.UUID) (*Disease, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	d, err := s.diseases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.PatientID != patientID {
		return nil, ErrDiseaseNotOwned
	}
	return d, nil
}

// checkDisease normalizes and validates d, then resolves its diagnosis code.
func (s *Service) checkDisease(ctx context.Context, d *Disease) (*dictionary.Entry, error) {
	d.DiagnosisCode = strings.ToUpper(strings.TrimSpace(d.DiagnosisCode))
	d.Diagnosis = nil

	verr := &ValidationError{}
	if err := s.validate.Struct(d); err != nil {
		converted := validationError(err)
		if !errors.As(converted, &verr) {
			return nil, converted
		}
	}
	if d.EndDate != nil && !d.StartDate.IsZero() && d.EndDate.Before(d.StartDate.Time) {
		verr.add("end_date", "must not be before start_date")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return s.resolve(ctx, d.DiagnosisCode)
}

func (s *Service) resolve(ctx context.Context, code string) (*dictionary.Entry, error) {
	entry, err := s.codes.GetByCode(ctx, code)
	if errors.Is(err, dictionary.ErrNotFound) {
		return nil, ErrUnknownDiagnosis
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDictionaryUnavailable, err)
	}
	return entry, nil
}

// describe attaches dictionary entries to diseases on read. Codes that no
// longer resolve, or a dictionary outage, leave Diagnosis empty.
func (s *Service) describe(ctx context.Context, diseases ...*Disease) {
	for _, d := range diseases {
		if entry, err := s.codes.GetByCode(ctx, d.DiagnosisCode); err == nil {
			d.Diagnosis = entry
		}
	}
}
