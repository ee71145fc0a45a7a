package usecase

import (
	"context"
	"crypto/rsa"
	"testing"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/nonce"
	"pki-ca-service/internal/pki"
	"pki-ca-service/internal/pki/pkitest"
)

// fixture は各サービスを共通のインメモリ保存領域で組み立てたもの。
type fixture struct {
	db       *memDB
	nonces   *nonce.MemoryStore
	users    *memUsers
	apps     *memApps
	certs    *memCerts
	revs     *memRevocations
	notifier *recordingNotifier
	ca       *pki.CAContext

	authSvc *AuthService
	appSvc  *ApplicationService
	revSvc  *RevocationService
	certSvc *CertificateService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ca, _ := pkitest.NewCAContext(t)
	db := newMemDB()
	f := &fixture{
		db:       db,
		nonces:   nonce.NewMemoryStore(nil),
		users:    &memUsers{db: db},
		apps:     &memApps{db: db},
		certs:    &memCerts{db: db},
		revs:     &memRevocations{db: db},
		notifier: &recordingNotifier{},
		ca:       ca,
	}
	tx := &memTransactor{db: db}
	f.authSvc = NewAuthService(f.users, f.nonces)
	f.appSvc = NewApplicationService(f.nonces, f.apps, f.certs, f.users, tx, pki.NewIssuer(ca), pki.NewSerialGenerator(), f.notifier)
	f.revSvc = NewRevocationService(f.certs, f.revs, f.users, tx, f.notifier)
	f.certSvc = NewCertificateService(f.certs, f.revs, ca)
	return f
}

// submit はCSRチャレンジの取得から申請提出までを行う。
func (f *fixture) submit(t *testing.T, requestor string) (*rsa.PrivateKey, *domain.ApplicationRequest) {
	t.Helper()
	ctx := context.Background()

	challenge, err := f.appSvc.IssueCSRChallenge(ctx, requestor)
	if err != nil {
		t.Fatalf("IssueCSRChallenge failed: %v", err)
	}
	key, csr := pkitest.NewCSR(t, requestor)
	req, err := f.appSvc.Submit(ctx, requestor, csr, pkitest.Sign(t, key, challenge.Value))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return key, req
}

// issue は申請と承認を行い、発行された証明書を返す。
func (f *fixture) issue(t *testing.T, requestor string) *domain.Certificate {
	t.Helper()

	_, req := f.submit(t, requestor)
	cert, err := f.appSvc.Approve(context.Background(), req.ID, "admin")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	return cert
}
