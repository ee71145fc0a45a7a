package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pki-ca-service/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// :memory: は接続ごとに別DBになるため1接続に固定する
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := AutoMigrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newPendingApplication(requestor string) *domain.ApplicationRequest {
	return &domain.ApplicationRequest{
		Requestor:   requestor,
		CSRPEM:      "-----BEGIN CERTIFICATE REQUEST-----\n-----END CERTIFICATE REQUEST-----\n",
		Status:      domain.RequestStatusPending,
		RequestTime: baseTime,
	}
}

func newCertificate(owner, serial string) *domain.Certificate {
	return &domain.Certificate{
		Owner:          owner,
		SerialNumber:   serial,
		CertificatePEM: "pem",
		ValidFrom:      baseTime,
		ValidTo:        baseTime.AddDate(0, 0, 365),
		IssueTime:      baseTime,
		SourceCSR:      "csr",
		ApplicationID:  "app-1",
	}
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	user := &domain.User{Username: "alice", Email: "alice@example.com", LoginPublicKey: "key"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" {
		t.Error("expected ID to be generated")
	}

	found, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if found == nil || found.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", found)
	}

	// 存在しない場合は nil
	missing, err := repo.FindByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	if err := repo.Create(ctx, &domain.User{Username: "alice", LoginPublicKey: "k1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := repo.Create(ctx, &domain.User{Username: "alice", LoginPublicKey: "k2"})
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestApplicationRepository_Transition(t *testing.T) {
	ctx := context.Background()
	repo := NewApplicationRepository(setupTestDB(t))

	req := newPendingApplication("alice")
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	approveAt := baseTime.Add(time.Hour)
	err := repo.Transition(ctx, req.ID, domain.Transition{To: domain.RequestStatusApproved, At: approveAt, By: "admin"})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	got, err := repo.FindByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Status != domain.RequestStatusApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}
	if got.ApprovedBy != "admin" || got.ApproveTime == nil || !got.ApproveTime.Equal(approveAt) {
		t.Errorf("approval fields not recorded: %+v", got)
	}

	// 終端状態からの遷移は失敗する
	err = repo.Transition(ctx, req.ID, domain.Transition{To: domain.RequestStatusRejected, At: approveAt, By: "admin"})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplicationRepository_TransitionRequiresTerminalStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewApplicationRepository(setupTestDB(t))

	req := newPendingApplication("alice")
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := repo.Transition(ctx, req.ID, domain.Transition{To: domain.RequestStatusPending, At: baseTime})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplicationRepository_FindByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewApplicationRepository(setupTestDB(t))

	first := newPendingApplication("alice")
	second := newPendingApplication("bob")
	second.RequestTime = baseTime.Add(time.Minute)
	for _, r := range []*domain.ApplicationRequest{second, first} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.Transition(ctx, second.ID, domain.Transition{To: domain.RequestStatusRejected, At: baseTime, By: "admin", Reason: "dup"}); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	pending, err := repo.FindByStatus(ctx, domain.RequestStatusPending)
	if err != nil {
		t.Fatalf("FindByStatus failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Errorf("unexpected pending list: %+v", pending)
	}

	rejected, err := repo.FindByStatus(ctx, domain.RequestStatusRejected)
	if err != nil {
		t.Fatalf("FindByStatus failed: %v", err)
	}
	if len(rejected) != 1 || rejected[0].RejectReason != "dup" {
		t.Errorf("unexpected rejected list: %+v", rejected)
	}

	mine, err := repo.FindByRequestor(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByRequestor failed: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("expected 1 request for alice, got %d", len(mine))
	}
}

func TestCertificateRepository_DuplicateSerial(t *testing.T) {
	ctx := context.Background()
	repo := NewCertificateRepository(setupTestDB(t))

	if err := repo.Create(ctx, newCertificate("alice", "SN-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := repo.Create(ctx, newCertificate("bob", "SN-1"))
	if !errors.Is(err, domain.ErrDuplicateSerial) {
		t.Errorf("expected ErrDuplicateSerial, got %v", err)
	}
}

func TestCertificateRepository_Find(t *testing.T) {
	ctx := context.Background()
	repo := NewCertificateRepository(setupTestDB(t))

	older := newCertificate("alice", "SN-1")
	newer := newCertificate("alice", "SN-2")
	newer.IssueTime = baseTime.Add(time.Hour)
	for _, c := range []*domain.Certificate{older, newer, newCertificate("bob", "SN-3")} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	bySerial, err := repo.FindBySerial(ctx, "SN-2")
	if err != nil {
		t.Fatalf("FindBySerial failed: %v", err)
	}
	if bySerial == nil || bySerial.ID != newer.ID {
		t.Errorf("unexpected certificate: %+v", bySerial)
	}
	if !bySerial.ValidTo.Equal(newer.ValidTo) {
		t.Errorf("ValidTo = %v, want %v", bySerial.ValidTo, newer.ValidTo)
	}

	byID, err := repo.FindByID(ctx, older.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if byID == nil || byID.SerialNumber != "SN-1" {
		t.Errorf("unexpected certificate: %+v", byID)
	}

	missing, err := repo.FindBySerial(ctx, "SN-404")
	if err != nil {
		t.Fatalf("FindBySerial failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}

	owned, err := repo.FindByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByOwner failed: %v", err)
	}
	if len(owned) != 2 || owned[0].SerialNumber != "SN-2" {
		t.Errorf("unexpected owner list: %+v", owned)
	}
}

func TestCertificateRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	tx := NewTransactor(db)
	repo := NewCertificateRepository(db)

	cert := newCertificate("alice", "SN-1")
	if err := repo.Create(ctx, cert); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return repo.LockForUpdate(ctx, cert.ID)
	})
	if err != nil {
		t.Fatalf("LockForUpdate failed: %v", err)
	}

	err = tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return repo.LockForUpdate(ctx, "missing")
	})
	if !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Errorf("expected ErrCertificateNotFound, got %v", err)
	}
}

func TestRevocationRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRevocationRepository(setupTestDB(t))

	req := &domain.RevocationRequest{
		CertificateID: "cert-1",
		SerialNumber:  "SN-1",
		Requestor:     "alice",
		Reason:        "key compromise",
		Status:        domain.RequestStatusPending,
		RequestTime:   baseTime,
	}
	if err := repo.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	pending, err := repo.HasPendingRequest(ctx, "cert-1")
	if err != nil {
		t.Fatalf("HasPendingRequest failed: %v", err)
	}
	if !pending {
		t.Error("expected pending request")
	}

	if err := repo.TransitionRequest(ctx, req.ID, domain.Transition{To: domain.RequestStatusApproved, At: baseTime, By: "admin"}); err != nil {
		t.Fatalf("TransitionRequest failed: %v", err)
	}
	err = repo.TransitionRequest(ctx, req.ID, domain.Transition{To: domain.RequestStatusApproved, At: baseTime, By: "admin"})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}

	pending, _ = repo.HasPendingRequest(ctx, "cert-1")
	if pending {
		t.Error("expected no pending request after approval")
	}

	list, err := repo.FindRequestsByStatus(ctx, domain.RequestStatusApproved)
	if err != nil {
		t.Fatalf("FindRequestsByStatus failed: %v", err)
	}
	if len(list) != 1 || list[0].ApprovedBy != "admin" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestRevocationRepository_Records(t *testing.T) {
	ctx := context.Background()
	repo := NewRevocationRepository(setupTestDB(t))

	revoked, err := repo.IsRevoked(ctx, "cert-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Error("expected not revoked")
	}

	rec := &domain.RevocationRecord{CertificateID: "cert-1", SerialNumber: "SN-1", RevokeTime: baseTime, Reason: "superseded"}
	if err := repo.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	revoked, _ = repo.IsRevoked(ctx, "cert-1")
	if !revoked {
		t.Error("expected revoked")
	}

	// 同一証明書への二重失効は拒否される
	err = repo.CreateRecord(ctx, &domain.RevocationRecord{CertificateID: "cert-1", SerialNumber: "SN-1", RevokeTime: baseTime, Reason: "again"})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].Reason != "superseded" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestTransactor_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	tx := NewTransactor(db)
	apps := NewApplicationRepository(db)
	certs := NewCertificateRepository(db)

	req := newPendingApplication("alice")
	if err := apps.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := certs.Create(ctx, newCertificate("bob", "SN-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 遷移後に証明書の保存が失敗すると遷移も取り消される
	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := apps.Transition(ctx, req.ID, domain.Transition{To: domain.RequestStatusApproved, At: baseTime, By: "admin"}); err != nil {
			return err
		}
		return certs.Create(ctx, newCertificate("alice", "SN-1"))
	})
	if !errors.Is(err, domain.ErrDuplicateSerial) {
		t.Fatalf("expected ErrDuplicateSerial, got %v", err)
	}

	got, err := apps.FindByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Status != domain.RequestStatusPending {
		t.Errorf("status = %s, want PENDING after rollback", got.Status)
	}
}

func TestTransactor_Commit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	tx := NewTransactor(db)
	certs := NewCertificateRepository(db)

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		// 入れ子の呼び出しは外側のトランザクションを共有する
		return tx.WithinTransaction(ctx, func(ctx context.Context) error {
			return certs.Create(ctx, newCertificate("alice", "SN-9"))
		})
	})
	if err != nil {
		t.Fatalf("WithinTransaction failed: %v", err)
	}

	got, err := certs.FindBySerial(ctx, "SN-9")
	if err != nil {
		t.Fatalf("FindBySerial failed: %v", err)
	}
	if got == nil {
		t.Error("expected committed certificate")
	}
}

func TestMigrationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMigrationRepository(setupTestDB(t))

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if err := repo.RecordMigration(ctx, "002"); err != nil {
		t.Fatalf("RecordMigration failed: %v", err)
	}
	if err := repo.RecordMigration(ctx, "001"); err != nil {
		t.Fatalf("RecordMigration failed: %v", err)
	}

	applied, err := repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 to be applied")
	}

	all, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(all) != 2 || all[0].Version != "001" || all[1].Version != "002" {
		t.Errorf("unexpected applied list: %+v", all)
	}
	if all[0].AppliedAt == all[1].AppliedAt {
		t.Error("applied times must not alias")
	}
}

func TestMigrationRepository_ApplyScript(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	script := "-- create two tables\nCREATE TABLE a (id INTEGER);\nCREATE TABLE b (id INTEGER);\n"
	if err := repo.ApplyScript(ctx, "010", script); err != nil {
		t.Fatalf("ApplyScript failed: %v", err)
	}

	for _, table := range []string{"a", "b"} {
		var count int64
		if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error; err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s was not created", table)
		}
	}
	applied, _ := repo.IsMigrationApplied(ctx, "010")
	if !applied {
		t.Error("expected 010 to be recorded")
	}

	// 不正なSQLは記録されない
	if err := repo.ApplyScript(ctx, "011", "INVALID SQL SYNTAX;"); err == nil {
		t.Error("expected error for invalid SQL")
	}
	applied, _ = repo.IsMigrationApplied(ctx, "011")
	if applied {
		t.Error("failed migration must not be recorded")
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE x (id INT);\n\n  ;\nINSERT INTO x VALUES (1);")
	want := []string{"CREATE TABLE x (id INT)", "INSERT INTO x VALUES (1)"}
	if len(got) != len(want) {
		t.Fatalf("got %d statements, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}
