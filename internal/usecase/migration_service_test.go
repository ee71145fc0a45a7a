package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"pki-ca-service/internal/domain"
)

// mockMigrationRepository はテスト用のモック。
type mockMigrationRepository struct {
	appliedMigrations map[string]*domain.Migration
	scripts           []string
	applyErrors       map[string]error
	ensureErr         error
}

func newMockMigrationRepository() *mockMigrationRepository {
	return &mockMigrationRepository{
		appliedMigrations: make(map[string]*domain.Migration),
		applyErrors:       make(map[string]error),
	}
}

func (m *mockMigrationRepository) EnsureTable(ctx context.Context) error {
	return m.ensureErr
}

func (m *mockMigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var result []*domain.Migration
	for _, migration := range m.appliedMigrations {
		result = append(result, migration)
	}
	return result, nil
}

func (m *mockMigrationRepository) IsMigrationApplied(ctx context.Context, version string) (bool, error) {
	_, exists := m.appliedMigrations[version]
	return exists, nil
}

func (m *mockMigrationRepository) ApplyScript(ctx context.Context, version, script string) error {
	if err := m.applyErrors[version]; err != nil {
		return err
	}
	now := time.Now()
	m.scripts = append(m.scripts, version)
	m.appliedMigrations[version] = &domain.Migration{
		Version:   version,
		AppliedAt: &now,
		Status:    domain.MigrationStatusApplied,
	}
	return nil
}

func (m *mockMigrationRepository) markApplied(versions ...string) {
	now := time.Now()
	for _, v := range versions {
		m.appliedMigrations[v] = &domain.Migration{
			Version:   v,
			AppliedAt: &now,
			Status:    domain.MigrationStatusApplied,
		}
	}
}

// testMigrationsFS はテスト用のマイグレーションファイル群。
func testMigrationsFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/003_create_revocations.sql":  {Data: []byte("CREATE TABLE revocations (id INT);")},
		"sql/001_create_users.sql":        {Data: []byte("CREATE TABLE users (id INT);")},
		"sql/002_create_certificates.sql": {Data: []byte("CREATE TABLE certificates (id INT);")},
		"sql/README.md":                   {Data: []byte("ignored")},
	}
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	service := NewMigrationService(repo, testMigrationsFS(), "sql")

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied, got %d", count)
	}

	// バージョン順に適用される
	want := []string{"001", "002", "003"}
	if strings.Join(repo.scripts, ",") != strings.Join(want, ",") {
		t.Errorf("applied order = %v, want %v", repo.scripts, want)
	}
}

func TestMigrationService_ApplyMigrations_AlreadyApplied(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	repo.markApplied("001", "002")
	service := NewMigrationService(repo, testMigrationsFS(), "sql")

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 migration applied, got %d", count)
	}
}

func TestMigrationService_ApplyMigrations_Error(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	repo.applyErrors["002"] = errors.New("syntax error")
	service := NewMigrationService(repo, testMigrationsFS(), "sql")

	count, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	// 失敗したバージョン以降は適用されない
	if count != 1 {
		t.Errorf("expected 1 migration applied before failure, got %d", count)
	}
	if _, ok := repo.appliedMigrations["003"]; ok {
		t.Error("003 must not be applied after failure")
	}
}

func TestMigrationService_InvalidFileName(t *testing.T) {
	ctx := context.Background()
	files := fstest.MapFS{
		"create_users.sql": {Data: []byte("CREATE TABLE users (id INT);")},
	}
	service := NewMigrationService(newMockMigrationRepository(), files, "")

	if _, err := service.ApplyMigrations(ctx); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_DuplicateVersion(t *testing.T) {
	ctx := context.Background()
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	service := NewMigrationService(newMockMigrationRepository(), files, ".")

	if _, err := service.GetMigrationStatus(ctx); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	repo.markApplied("001")
	service := NewMigrationService(repo, testMigrationsFS(), "sql")

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Errorf("expected 3 migrations, got %d", len(migrations))
	}

	expectedStatuses := map[string]domain.MigrationStatus{
		"001": domain.MigrationStatusApplied,
		"002": domain.MigrationStatusPending,
		"003": domain.MigrationStatusPending,
	}
	for _, migration := range migrations {
		expectedStatus, exists := expectedStatuses[migration.Version]
		if !exists {
			t.Errorf("unexpected migration version: %s", migration.Version)
			continue
		}
		if migration.Status != expectedStatus {
			t.Errorf("migration %s: expected status %s, got %s", migration.Version, expectedStatus, migration.Status)
		}
	}
	if migrations[0].AppliedAt == nil {
		t.Error("expected applied time for 001")
	}
}
