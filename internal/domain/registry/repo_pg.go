package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datafire-practice/patient-registry-backend/internal/platform/db"
	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	insuranceConstraint = "uk_insurance_number"
)

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// -- Patient Repository --

var patientSortColumns = map[string]string{
	"last_name":        "last_name",
	"first_name":       "first_name",
	"middle_name":      "middle_name",
	"birth_date":       "birth_date",
	"insurance_number": "insurance_number",
	"created_at":       "created_at",
}

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, last_name, first_name, middle_name, gender, birth_date, insurance_number, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birth time.Time
	err := row.Scan(&p.ID, &p.LastName, &p.FirstName, &p.MiddleName, &p.Gender,
		&birth, &p.InsuranceNumber, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BirthDate = NewDate(birth)
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, last_name, first_name, middle_name, gender, birth_date, insurance_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.LastName, p.FirstName, p.MiddleName, p.Gender, p.BirthDate.Time, p.InsuranceNumber,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return patientWriteError("create", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET last_name = $2, first_name = $3, middle_name = $4, gender = $5,
			birth_date = $6, insurance_number = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.LastName, p.FirstName, p.MiddleName, p.Gender, p.BirthDate.Time, p.InsuranceNumber,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	if err != nil {
		return patientWriteError("update", err)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, p pagination.Params) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM patient %s %s`,
		patientCols, p.OrderBy(patientSortColumns, "id"), p.SQL()))
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		pt, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return patients, total, nil
}

func patientWriteError(op string, err error) error {
	if code, constraint := pgCode(err); code == uniqueViolation && constraint == insuranceConstraint {
		return ErrDuplicateInsurance
	}
	return fmt.Errorf("%s patient: %w", op, err)
}

// -- Disease Repository --

var diseaseSortColumns = map[string]string{
	"diagnosis_code":    "diagnosis_code",
	"start_date":        "start_date",
	"end_date":          "end_date",
	"sick_leave_issued": "sick_leave_issued",
	"created_at":        "created_at",
}

type diseaseRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiseaseRepo(pool *pgxpool.Pool) DiseaseRepository {
	return &diseaseRepoPG{pool: pool}
}

func (r *diseaseRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const diseaseCols = `id, patient_id, diagnosis_code, start_date, end_date, prescriptions, sick_leave_issued, created_at, updated_at`

func (r *diseaseRepoPG) scanDisease(row pgx.Row) (*Disease, error) {
	var d Disease
	var start time.Time
	var end *time.Time
	var sickLeave bool
	err := row.Scan(&d.ID, &d.PatientID, &d.DiagnosisCode, &start, &end,
		&d.Prescriptions, &sickLeave, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.StartDate = NewDate(start)
	if end != nil {
		e := NewDate(*end)
		d.EndDate = &e
	}
	d.SickLeaveIssued = &sickLeave
	return &d, nil
}

func endDateArg(d *Disease) *time.Time {
	if d.EndDate == nil {
		return nil
	}
	t := d.EndDate.Time
	return &t
}

func (r *diseaseRepoPG) Create(ctx context.Context, d *Disease) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO disease (id, patient_id, diagnosis_code, start_date, end_date, prescriptions, sick_leave_issued)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.DiagnosisCode, d.StartDate.Time, endDateArg(d), d.Prescriptions, *d.SickLeaveIssued,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == foreignKeyViolation {
			return ErrPatientNotFound
		}
		return fmt.Errorf("create disease: %w", err)
	}
	return nil
}

func (r *diseaseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Disease, error) {
	d, err := r.scanDisease(r.conn(ctx).QueryRow(ctx,
		`SELECT `+diseaseCols+` FROM disease WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDiseaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get disease: %w", err)
	}
	return d, nil
}

func (r *diseaseRepoPG) Update(ctx context.Context, d *Disease) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE disease SET diagnosis_code = $2, start_date = $3, end_date = $4,
			prescriptions = $5, sick_leave_issued = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING patient_id, created_at, updated_at`,
		d.ID, d.DiagnosisCode, d.StartDate.Time, endDateArg(d), d.Prescriptions, *d.SickLeaveIssued,
	).Scan(&d.PatientID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDiseaseNotFound
	}
	if err != nil {
		return fmt.Errorf("update disease: %w", err)
	}
	return nil
}

func (r *diseaseRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM disease WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete disease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDiseaseNotFound
	}
	return nil
}

func (r *diseaseRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Disease, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM disease WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diseases: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	diseases, err := r.query(ctx, fmt.Sprintf(`SELECT %s FROM disease WHERE patient_id = $1 %s %s`,
		diseaseCols, p.OrderBy(diseaseSortColumns, "id"), p.SQL()), patientID)
	if err != nil {
		return nil, 0, err
	}
	return diseases, total, nil
}

func (r *diseaseRepoPG) ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Disease, error) {
	return r.query(ctx, `SELECT `+diseaseCols+` FROM disease WHERE patient_id = $1 ORDER BY start_date DESC, id`, patientID)
}

func (r *diseaseRepoPG) query(ctx context.Context, sql string, args ...any) ([]*Disease, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list diseases: %w", err)
	}
	defer rows.Close()

	var diseases []*Disease
	for rows.Next() {
		d, err := r.scanDisease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan disease: %w", err)
		}
		diseases = append(diseases, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list diseases: %w", err)
	}
	return diseases, nil
}
