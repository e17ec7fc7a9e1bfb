package http

import (
	"context"

	"github.com/harrowgate/epv/internal/domain"
)

type fakeEmailRepo struct {
	byUser map[string][]*domain.EmailRecord
	byID   map[string]*domain.EmailRecord
}

func newFakeEmailRepo(records ...*domain.EmailRecord) *fakeEmailRepo {
	repo := &fakeEmailRepo{
		byUser: make(map[string][]*domain.EmailRecord),
		byID:   make(map[string]*domain.EmailRecord),
	}
	for _, r := range records {
		repo.byUser[r.User] = append(repo.byUser[r.User], r)
		repo.byID[r.User+"/"+r.ID] = r
	}
	return repo
}

func (f *fakeEmailRepo) ListForUser(_ context.Context, user string) ([]*domain.EmailRecord, error) {
	return f.byUser[user], nil
}

func (f *fakeEmailRepo) GetByID(_ context.Context, user, id string) (*domain.EmailRecord, error) {
	rec, ok := f.byID[user+"/"+id]
	if !ok {
		return nil, domain.NotFound()
	}
	return rec, nil
}

func (f *fakeEmailRepo) Exists(_ context.Context, id string) (bool, error) {
	for _, rec := range f.byID {
		if rec.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEmailRepo) Insert(_ context.Context, e *domain.EmailRecord) error {
	f.byUser[e.User] = append(f.byUser[e.User], e)
	f.byID[e.User+"/"+e.ID] = e
	return nil
}

type fakeMacroRepo struct {
	macros []domain.Macro
}

func (f *fakeMacroRepo) Find(name string) (*domain.Macro, bool) {
	for i := range f.macros {
		if f.macros[i].Name == name {
			return &f.macros[i], true
		}
	}
	return nil, false
}

func (f *fakeMacroRepo) List() []domain.Macro { return f.macros }
