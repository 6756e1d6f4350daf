package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p pagination.Params) ([]*Patient, int, error)
}

type DiseaseRepository interface {
	Create(ctx context.Context, d *Disease) error
	GetByID(ctx context.Context, id uuid.UUID) (*Disease, error)
	Update(ctx context.Context, d *Disease) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Disease, int, error)
	ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Disease, error)
}
