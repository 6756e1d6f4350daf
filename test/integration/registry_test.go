package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datafire-practice/patient-registry-backend/internal/domain/dictionary"
	"github.com/datafire-practice/patient-registry-backend/internal/domain/registry"
	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

func TestPatientRepo_CRUD(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)
	repo := registry.NewPatientRepo(globalPool)

	p := createTestPatient(t, ctx, repo, "Петров", "1234567890123456")
	if p.ID == uuid.Nil {
		t.Fatal("expected ID to be assigned")
	}
	if p.CreatedAt.IsZero() {
		t.Error("expected created_at to be returned")
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastName != "Петров" || got.BirthDate.String() != "1985-04-12" || got.MiddleName != nil {
		t.Errorf("unexpected patient %+v", got)
	}

	got.MiddleName = ptrStr("Сергеевич")
	got.InsuranceNumber = "6543210987654321"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.MiddleName == nil || *reloaded.MiddleName != "Сергеевич" || reloaded.InsuranceNumber != "6543210987654321" {
		t.Errorf("update not persisted: %+v", reloaded)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, registry.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, registry.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound on second delete, got %v", err)
	}
}

func TestPatientRepo_DuplicateInsurance(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)
	repo := registry.NewPatientRepo(globalPool)

	createTestPatient(t, ctx, repo, "Петров", "1111222233334444")
	other := createTestPatient(t, ctx, repo, "Сидорова", "5555666677778888")

	dup := &registry.Patient{
		LastName:        "Иванов",
		FirstName:       "Пётр",
		Gender:          registry.GenderMale,
		BirthDate:       registry.NewDate(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)),
		InsuranceNumber: "1111222233334444",
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, registry.ErrDuplicateInsurance) {
		t.Errorf("create: expected ErrDuplicateInsurance, got %v", err)
	}

	other.InsuranceNumber = "1111222233334444"
	if err := repo.Update(ctx, other); !errors.Is(err, registry.ErrDuplicateInsurance) {
		t.Errorf("update: expected ErrDuplicateInsurance, got %v", err)
	}
}

func TestPatientRepo_ListPagesAndSorts(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)
	repo := registry.NewPatientRepo(globalPool)

	createTestPatient(t, ctx, repo, "Борисов", "0000000000000001")
	createTestPatient(t, ctx, repo, "Андреев", "0000000000000002")
	createTestPatient(t, ctx, repo, "Васильев", "0000000000000003")

	page, total, err := repo.List(ctx, pagination.Params{
		Page: 0,
		Size: 2,
		Sort: []pagination.Order{{Field: "last_name"}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(page) != 2 || page[0].LastName != "Андреев" || page[1].LastName != "Борисов" {
		t.Errorf("unexpected first page: %v", lastNames(page))
	}

	page, _, err = repo.List(ctx, pagination.Params{
		Page: 1,
		Size: 2,
		Sort: []pagination.Order{{Field: "last_name"}},
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page) != 1 || page[0].LastName != "Васильев" {
		t.Errorf("unexpected second page: %v", lastNames(page))
	}
}

func lastNames(ps []*registry.Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.LastName
	}
	return out
}

func TestDiseaseRepo_CRUDAndCascade(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)
	patients := registry.NewPatientRepo(globalPool)
	diseases := registry.NewDiseaseRepo(globalPool)

	p := createTestPatient(t, ctx, patients, "Петров", "1234567890123456")
	older := createTestDisease(t, ctx, diseases, p.ID, "A00.0", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	newer := createTestDisease(t, ctx, diseases, p.ID, "J06.9", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	end := registry.NewDate(time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC))
	older.EndDate = &end
	older.SickLeaveIssued = ptrBool(true)
	if err := diseases.Update(ctx, older); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := diseases.GetByID(ctx, older.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndDate == nil || got.EndDate.String() != "2023-01-20" || !*got.SickLeaveIssued {
		t.Errorf("update not persisted: %+v", got)
	}

	list, total, err := diseases.ListByPatient(ctx, p.ID, pagination.Params{
		Size: 10,
		Sort: []pagination.Order{{Field: "start_date", Desc: true}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].ID != newer.ID {
		t.Errorf("expected newest first, got total=%d", total)
	}

	if err := patients.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete patient: %v", err)
	}
	if _, err := diseases.GetByID(ctx, newer.ID); !errors.Is(err, registry.ErrDiseaseNotFound) {
		t.Errorf("expected diseases to be removed with their patient, got %v", err)
	}
}

func TestDiseaseRepo_UnknownPatient(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)
	diseases := registry.NewDiseaseRepo(globalPool)

	d := &registry.Disease{
		PatientID:       uuid.New(),
		DiagnosisCode:   "A00.0",
		StartDate:       registry.NewDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Prescriptions:   "Покой",
		SickLeaveIssued: ptrBool(false),
	}
	if err := diseases.Create(ctx, d); !errors.Is(err, registry.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestRegistryService_DiagnosisFromDictionary(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)

	src := &staticSource{data: mkb10Header + "1,,\"J06.9\",\"Острая инфекция верхних дыхательных путей\"\n"}
	dict, _ := newDictionaryService(t, src)
	if _, err := dict.SyncNow(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	svc := registry.NewService(registry.NewPatientRepo(globalPool), registry.NewDiseaseRepo(globalPool), dict)

	p := &registry.Patient{
		LastName:        "Смирнова",
		FirstName:       "Анна",
		Gender:          "ж",
		BirthDate:       registry.NewDate(time.Date(1979, 8, 30, 0, 0, 0, 0, time.UTC)),
		InsuranceNumber: "9876543210123456",
	}
	if err := svc.CreatePatient(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}

	d := &registry.Disease{
		DiagnosisCode:   "J06.9",
		StartDate:       registry.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Prescriptions:   "Парацетамол",
		SickLeaveIssued: ptrBool(true),
	}
	if err := svc.CreateDisease(ctx, p.ID, d); err != nil {
		t.Fatalf("create disease: %v", err)
	}
	if d.Diagnosis == nil || d.Diagnosis.Code != "J06.9" {
		t.Errorf("expected diagnosis to be attached, got %+v", d.Diagnosis)
	}

	unknown := &registry.Disease{
		DiagnosisCode:   "A00.0",
		StartDate:       registry.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Prescriptions:   "Регидратация",
		SickLeaveIssued: ptrBool(false),
	}
	if err := svc.CreateDisease(ctx, p.ID, unknown); !errors.Is(err, registry.ErrUnknownDiagnosis) {
		t.Errorf("expected ErrUnknownDiagnosis, got %v", err)
	}

	got, err := svc.GetPatient(ctx, p.ID)
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if got.Gender != registry.GenderFemale {
		t.Errorf("expected normalized gender, got %q", got.Gender)
	}
	if len(got.Diseases) != 1 || got.Diseases[0].Diagnosis == nil {
		t.Fatalf("expected one described disease, got %+v", got.Diseases)
	}
	if got.Diseases[0].Diagnosis.Name != "Острая инфекция верхних дыхательных путей" {
		t.Errorf("unexpected diagnosis name %q", got.Diseases[0].Diagnosis.Name)
	}
}

// Replacing the dictionary must not touch recorded diseases, even when
// their code disappears from the new set.
func TestRegistryService_DiseaseSurvivesDictionaryReplace(t *testing.T) {
	ctx := testContext(t)
	resetTables(t, ctx)

	src := &staticSource{data: mkb10Header + "1,,\"A00.0\",\"Холера\"\n"}
	dict, _ := newDictionaryService(t, src)
	if _, err := dict.SyncNow(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	svc := registry.NewService(registry.NewPatientRepo(globalPool), registry.NewDiseaseRepo(globalPool), dict)

	p := createTestPatient(t, ctx, registry.NewPatientRepo(globalPool), "Петров", "1234567890123456")
	d := &registry.Disease{
		DiagnosisCode:   "A00.0",
		StartDate:       registry.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Prescriptions:   "Регидратация",
		SickLeaveIssued: ptrBool(false),
	}
	if err := svc.CreateDisease(ctx, p.ID, d); err != nil {
		t.Fatalf("create disease: %v", err)
	}

	src.data = mkb10Header + "1,,\"B01.9\",\"Ветряная оспа\"\n"
	if _, err := dict.SyncNow(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}

	got, err := svc.GetDisease(ctx, p.ID, d.ID)
	if err != nil {
		t.Fatalf("get disease: %v", err)
	}
	if got.DiagnosisCode != "A00.0" {
		t.Errorf("expected stored code to be kept, got %q", got.DiagnosisCode)
	}
	if got.Diagnosis != nil {
		t.Errorf("expected no description for a retired code, got %+v", got.Diagnosis)
	}
	if _, err := dict.GetByCode(ctx, "A00.0"); !errors.Is(err, dictionary.ErrNotFound) {
		t.Errorf("expected retired code to be gone from the dictionary, got %v", err)
	}
}
