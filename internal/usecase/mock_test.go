package usecase

import (
	"context"
	"crypto"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki"
)

// memDB はテスト用のインメモリ保存領域。memTransactor はスナップショットでロールバックを再現する。
type memDB struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	seq     int
	users   map[string]domain.User
	apps    map[string]domain.ApplicationRequest
	certs   map[string]domain.Certificate
	revReqs map[string]domain.RevocationRequest
	records map[string]domain.RevocationRecord // certificate ID -> record
}

func newMemDB() *memDB {
	return &memDB{
		users:   make(map[string]domain.User),
		apps:    make(map[string]domain.ApplicationRequest),
		certs:   make(map[string]domain.Certificate),
		revReqs: make(map[string]domain.RevocationRequest),
		records: make(map[string]domain.RevocationRecord),
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// memTransactor は memDB を直列化し、fn がエラーを返したら状態を巻き戻す。
type memTransactor struct {
	db *memDB
}

func (t *memTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.mu.Lock()
	apps, certs := cloneMap(t.db.apps), cloneMap(t.db.certs)
	revReqs, records := cloneMap(t.db.revReqs), cloneMap(t.db.records)
	t.db.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.db.mu.Lock()
		t.db.apps, t.db.certs = apps, certs
		t.db.revReqs, t.db.records = revReqs, records
		t.db.mu.Unlock()
		return err
	}
	return nil
}

type memUsers struct{ db *memDB }

func (r *memUsers) Create(ctx context.Context, user *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[user.Username]; ok {
		return domain.ErrUserAlreadyExists
	}
	user.ID = r.db.nextID("user")
	r.db.users[user.Username] = *user
	return nil
}

func (r *memUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type memApps struct{ db *memDB }

func (r *memApps) Create(ctx context.Context, req *domain.ApplicationRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req.ID = r.db.nextID("app")
	r.db.apps[req.ID] = *req
	return nil
}

func (r *memApps) FindByID(ctx context.Context, id string) (*domain.ApplicationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.apps[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *memApps) FindByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.ApplicationRequest, error) {
	return r.filter(func(req domain.ApplicationRequest) bool { return req.Status == status }), nil
}

func (r *memApps) FindByRequestor(ctx context.Context, requestor string) ([]*domain.ApplicationRequest, error) {
	return r.filter(func(req domain.ApplicationRequest) bool { return req.Requestor == requestor }), nil
}

func (r *memApps) filter(keep func(domain.ApplicationRequest) bool) []*domain.ApplicationRequest {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.ApplicationRequest
	for _, req := range r.db.apps {
		if keep(req) {
			req := req
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestTime.Before(out[j].RequestTime) })
	return out
}

func (r *memApps) Transition(ctx context.Context, id string, t domain.Transition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.apps[id]
	if !ok || !req.Status.CanTransitionTo(t.To) {
		return domain.ErrInvalidStateTransition
	}
	req.Status = t.To
	at := t.At
	switch t.To {
	case domain.RequestStatusApproved:
		req.ApproveTime, req.ApprovedBy = &at, t.By
	case domain.RequestStatusRejected:
		req.RejectTime, req.RejectBy, req.RejectReason = &at, t.By, t.Reason
	}
	r.db.apps[id] = req
	return nil
}

type memCerts struct {
	db        *memDB
	createErr error
	locked    []string
}

func (r *memCerts) Create(ctx context.Context, cert *domain.Certificate) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.certs {
		if c.SerialNumber == cert.SerialNumber {
			return domain.ErrDuplicateSerial
		}
	}
	cert.ID = r.db.nextID("cert")
	r.db.certs[cert.ID] = *cert
	return nil
}

func (r *memCerts) FindByID(ctx context.Context, id string) (*domain.Certificate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.certs[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCerts) FindBySerial(ctx context.Context, serial string) (*domain.Certificate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.certs {
		if c.SerialNumber == serial {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memCerts) FindByOwner(ctx context.Context, owner string) ([]*domain.Certificate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.Certificate
	for _, c := range r.db.certs {
		if c.Owner == owner {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (r *memCerts) LockForUpdate(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.certs[id]; !ok {
		return domain.ErrCertificateNotFound
	}
	r.locked = append(r.locked, id)
	return nil
}

func (r *memCerts) count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.certs)
}

type memRevocations struct{ db *memDB }

func (r *memRevocations) CreateRequest(ctx context.Context, req *domain.RevocationRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req.ID = r.db.nextID("rev")
	r.db.revReqs[req.ID] = *req
	return nil
}

func (r *memRevocations) FindRequestByID(ctx context.Context, id string) (*domain.RevocationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.revReqs[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *memRevocations) FindRequestsByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.RevocationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.RevocationRequest
	for _, req := range r.db.revReqs {
		if req.Status == status {
			req := req
			out = append(out, &req)
		}
	}
	return out, nil
}

func (r *memRevocations) HasPendingRequest(ctx context.Context, certificateID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, req := range r.db.revReqs {
		if req.CertificateID == certificateID && req.Status == domain.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRevocations) TransitionRequest(ctx context.Context, id string, t domain.Transition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.revReqs[id]
	if !ok || !req.Status.CanTransitionTo(t.To) {
		return domain.ErrInvalidStateTransition
	}
	req.Status = t.To
	at := t.At
	switch t.To {
	case domain.RequestStatusApproved:
		req.ApproveTime, req.ApprovedBy = &at, t.By
	case domain.RequestStatusRejected:
		req.RejectTime, req.RejectBy, req.RejectReason = &at, t.By, t.Reason
	}
	r.db.revReqs[id] = req
	return nil
}

func (r *memRevocations) CreateRecord(ctx context.Context, rec *domain.RevocationRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.records[rec.CertificateID]; ok {
		return domain.ErrInvalidStateTransition
	}
	rec.ID = r.db.nextID("crl")
	r.db.records[rec.CertificateID] = *rec
	return nil
}

func (r *memRevocations) IsRevoked(ctx context.Context, certificateID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.records[certificateID]
	return ok, nil
}

func (r *memRevocations) ListRecords(ctx context.Context) ([]*domain.RevocationRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.RevocationRecord
	for _, rec := range r.db.records {
		rec := rec
		out = append(out, &rec)
	}
	return out, nil
}

// failingIssuer は常に発行に失敗するモック。
type failingIssuer struct{}

func (failingIssuer) Issue(pub crypto.PublicKey, subject pkix.Name, serial string) (*pki.IssuedCertificate, error) {
	return nil, fmt.Errorf("%w: %w", domain.ErrIssuance, errors.New("signer unavailable"))
}

// fixedSerials は固定のシリアル番号を返すモック。
type fixedSerials struct{ serial string }

func (f fixedSerials) Next() string { return f.serial }

// notification は記録された通知。
type notification struct {
	event string
	to    domain.Recipient
}

// recordingNotifier は通知を記録するモック。
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	err    error
}

func (n *recordingNotifier) record(event string, to domain.Recipient) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{event: event, to: to})
	return n.err
}

func (n *recordingNotifier) NotifyIssued(ctx context.Context, to domain.Recipient, cert *domain.Certificate) error {
	return n.record("issued", to)
}

func (n *recordingNotifier) NotifyApplicationRejected(ctx context.Context, to domain.Recipient, req *domain.ApplicationRequest) error {
	return n.record("application_rejected", to)
}

func (n *recordingNotifier) NotifyRevoked(ctx context.Context, to domain.Recipient, rec *domain.RevocationRecord) error {
	return n.record("revoked", to)
}

func (n *recordingNotifier) NotifyRevocationRejected(ctx context.Context, to domain.Recipient, req *domain.RevocationRequest) error {
	return n.record("revocation_rejected", to)
}

func (n *recordingNotifier) list() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

// fakeClock はテスト用の固定時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
