package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/repositories"
)

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]models.User
	saveErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]models.User)}
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == u.Username || existing.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	_ = u.BeforeCreate(nil)
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) Save(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) find(match func(models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.find(func(u models.User) bool { return u.ID == id })
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return f.find(func(u models.User) bool { return u.Username == username })
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u models.User) bool { return u.Email == email })
}

func (f *fakeUsers) FindByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	return f.find(func(u models.User) bool { return u.Username == username || u.Email == email })
}

func (f *fakeUsers) FindFirstByRole(_ context.Context, role models.Role) (*models.User, error) {
	return f.find(func(u models.User) bool { return u.Role == role })
}

func (f *fakeUsers) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

type fakeQueue struct {
	mu     sync.Mutex
	mails  []ActivationMail
	reject bool
}

func (q *fakeQueue) Enqueue(m ActivationMail) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.mails = append(q.mails, m)
	return true
}

func (q *fakeQueue) last() ActivationMail {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mails[len(q.mails)-1]
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []ActivationMail
	err   error
	block chan struct{}
}

func (s *fakeSender) SendActivation(ctx context.Context, m ActivationMail) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeDocs struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]models.Document
	createErr error
	// bumpBeforeMark simulates another signer committing between read and write.
	bumpBeforeMark bool
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byID: make(map[uuid.UUID]models.Document)}
}

func (f *fakeDocs) Create(_ context.Context, d *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	_ = d.BeforeCreate(nil)
	for i := range d.Signers {
		d.Signers[i].DocumentID = d.ID
	}
	f.byID[d.ID] = *d
	return nil
}

func (f *fakeDocs) FindByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDocs) ListBySigner(_ context.Context, userID uuid.UUID) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.byID {
		if d.HasSigner(userID) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDocs) MarkSigned(_ context.Context, id uuid.UUID, expectedVersion int64, signedPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if f.bumpBeforeMark {
		d.Version++
	}
	if d.Version != expectedVersion {
		f.byID[id] = d
		return repositories.ErrStale
	}
	d.SignedPath = &signedPath
	d.Status = models.StatusSigned
	d.Version++
	f.byID[id] = d
	return nil
}
