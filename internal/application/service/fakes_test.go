package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
)

// store is an in-memory stand-in for the sqlite repositories. Reads and
// writes copy values so services cannot mutate stored state behind its back.
type store struct {
	mu          sync.Mutex
	packages    map[string]*entity.Package
	expeditions map[string]*entity.Expedition
	clients     map[string]*entity.Client
	categories  map[string]*entity.Category
	logs        []*entity.LogEntry

	// failDeletePackage makes the nth package delete (1-based) fail
	failDeletePackage int
	deleteCalls       int
	// failUpdatePackage makes the nth package update (1-based) fail
	failUpdatePackage int
	updateCalls       int
}

func newStore() *store {
	return &store{
		packages:    map[string]*entity.Package{},
		expeditions: map[string]*entity.Expedition{},
		clients:     map[string]*entity.Client{},
		categories:  map[string]*entity.Category{},
	}
}

func (s *store) snapshot() *store {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newStore()
	for k, v := range s.packages {
		c.packages[k] = v.Clone()
	}
	for k, v := range s.expeditions {
		e := *v
		c.expeditions[k] = &e
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	c.logs = append(c.logs, s.logs...)
	return c
}

func (s *store) restore(from *store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages = from.packages
	s.expeditions = from.expeditions
	s.clients = from.clients
	s.categories = from.categories
	s.logs = from.logs
}

func (s *store) logsFor(packageID string) []*entity.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.LogEntry
	for _, e := range s.logs {
		if e.PackageID == packageID {
			out = append(out, e)
		}
	}
	return out
}

// fakeTx rolls the store back when fn fails
type fakeTx struct{ st *store }

func (t *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	before := t.st.snapshot()
	if err := fn(ctx); err != nil {
		t.st.restore(before)
		return err
	}
	return nil
}

type memPackages struct{ st *store }

func (r *memPackages) Create(ctx context.Context, pkg *entity.Package) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.packages[pkg.ID] = pkg.Clone()
	return nil
}

func (r *memPackages) GetByID(ctx context.Context, id string) (*entity.Package, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.packages[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (r *memPackages) ListByExpedition(ctx context.Context, expeditionID string) ([]*entity.Package, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*entity.Package
	for _, p := range r.st.packages {
		if p.ExpeditionID == expeditionID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPackages) Update(ctx context.Context, pkg *entity.Package) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.packages[pkg.ID]; !ok {
		return entity.ErrNotFound
	}
	r.st.updateCalls++
	if r.st.failUpdatePackage > 0 && r.st.updateCalls == r.st.failUpdatePackage {
		return errors.New("database is locked")
	}
	r.st.packages[pkg.ID] = pkg.Clone()
	return nil
}

func (r *memPackages) Delete(ctx context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.deleteCalls++
	if r.st.failDeletePackage > 0 && r.st.deleteCalls == r.st.failDeletePackage {
		return errors.New("disk I/O error")
	}
	delete(r.st.packages, id)
	return nil
}

type memExpeditions struct{ st *store }

func (r *memExpeditions) Create(ctx context.Context, exp *entity.Expedition) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e := *exp
	r.st.expeditions[exp.ID] = &e
	return nil
}

func (r *memExpeditions) GetByID(ctx context.Context, id string) (*entity.Expedition, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e, ok := r.st.expeditions[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (r *memExpeditions) List(ctx context.Context, limit, offset int) ([]*entity.Expedition, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*entity.Expedition
	for _, e := range r.st.expeditions {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *memExpeditions) Update(ctx context.Context, exp *entity.Expedition) error {
	return r.Create(ctx, exp)
}

func (r *memExpeditions) Delete(ctx context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.expeditions, id)
	return nil
}

type memClients struct{ st *store }

func (r *memClients) Create(ctx context.Context, c *entity.Client) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.clients[c.ID] = c
	return nil
}

func (r *memClients) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.clients[id], nil
}

func (r *memClients) List(ctx context.Context) ([]*entity.Client, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*entity.Client
	for _, c := range r.st.clients {
		out = append(out, c)
	}
	return out, nil
}

type memCategories struct{ st *store }

func (r *memCategories) Create(ctx context.Context, c *entity.Category) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.categories[c.ID] = c
	return nil
}

func (r *memCategories) GetByID(ctx context.Context, id string) (*entity.Category, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.categories[id], nil
}

func (r *memCategories) List(ctx context.Context) ([]*entity.Category, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*entity.Category
	for _, c := range r.st.categories {
		out = append(out, c)
	}
	return out, nil
}

type memLogs struct{ st *store }

func (r *memLogs) Append(ctx context.Context, entry *entity.LogEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.logs = append(r.st.logs, entry)
	return nil
}

func (r *memLogs) ListByPackage(ctx context.Context, packageID string) ([]*entity.LogEntry, error) {
	return r.st.logsFor(packageID), nil
}

func (r *memLogs) DeleteByExpedition(ctx context.Context, expeditionID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	kept := r.st.logs[:0:0]
	for _, e := range r.st.logs {
		if e.ExpeditionID != expeditionID {
			kept = append(kept, e)
		}
	}
	r.st.logs = kept
	return nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// seqIDs returns zero-padded sequential ids, which sort in creation order
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockExtractor is a configurable InvoiceExtractor
type mockExtractor struct {
	ExtractFunc func(ctx context.Context, file []byte, mimeType string) (*reconcile.Extraction, error)
	calls       int
}

func (m *mockExtractor) ExtractInvoice(ctx context.Context, file []byte, mimeType string) (*reconcile.Extraction, error) {
	m.calls++
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, file, mimeType)
	}
	return nil, errors.New("not configured")
}

// mockNotifier records discrepancy notifications
type mockNotifier struct {
	NotifyFunc func(ctx context.Context, client *entity.Client, pkg *entity.Package) error
	sent       []*entity.Package
}

func (m *mockNotifier) NotifyDiscrepancy(ctx context.Context, client *entity.Client, pkg *entity.Package) error {
	m.sent = append(m.sent, pkg)
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, client, pkg)
	}
	return nil
}

// memFiles is an in-memory InvoiceFileStorage
type memFiles struct {
	files map[string][]byte
	n     int
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (m *memFiles) Save(ctx context.Context, fileName string, content []byte) (string, error) {
	m.n++
	id := fmt.Sprintf("file-%d-%s", m.n, fileName)
	m.files[id] = content
	return id, nil
}

func (m *memFiles) Read(ctx context.Context, fileID string) ([]byte, string, error) {
	c, ok := m.files[fileID]
	if !ok {
		return nil, "", entity.ErrNotFound
	}
	return c, "application/pdf", nil
}

func (m *memFiles) Delete(ctx context.Context, fileID string) error {
	delete(m.files, fileID)
	return nil
}

// harness wires every service against one in-memory store
type harness struct {
	st           *store
	clock        *fixedClock
	ids          *seqIDs
	packages     PackageService
	expeditions  ExpeditionService
	verification VerificationService
	catalog      CatalogService
	extractor    *mockExtractor
	notifier     *mockNotifier
	files        *memFiles
}

func newHarness() *harness {
	st := newStore()
	h := &harness{
		st:        st,
		clock:     &fixedClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
		ids:       &seqIDs{},
		extractor: &mockExtractor{},
		notifier:  &mockNotifier{},
		files:     newMemFiles(),
	}
	pkgRepo := &memPackages{st: st}
	expRepo := &memExpeditions{st: st}
	clientRepo := &memClients{st: st}
	catRepo := &memCategories{st: st}
	logRepo := &memLogs{st: st}
	tx := &fakeTx{st: st}

	h.packages = NewPackageService(pkgRepo, expRepo, clientRepo, logRepo, tx, h.clock, h.ids, nopLogger{})
	h.expeditions = NewExpeditionService(expRepo, pkgRepo, clientRepo, catRepo, logRepo, tx, h.packages, h.clock, h.ids, nopLogger{})
	h.verification = NewVerificationService(h.packages, clientRepo, h.files, h.extractor, h.notifier, nopLogger{})
	h.catalog = NewCatalogService(clientRepo, catRepo, h.clock, h.ids, nopLogger{})
	return h
}

func decodeDetails(raw json.RawMessage) map[string]interface{} {
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}
