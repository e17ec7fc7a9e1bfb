package pipeline

import (
	"context"
	"fmt"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/internal/service/urlcache"
)

type fakeContentStore struct {
	files map[string][]byte
}

func (f *fakeContentStore) ReadHTML(_ context.Context, relPath string) ([]byte, error) {
	b, ok := f.files[relPath]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", relPath)
	}
	return b, nil
}

type fakeMacroRepo struct {
	macros map[string]*domain.Macro
}

func newFakeMacroRepo(macros ...domain.Macro) *fakeMacroRepo {
	m := make(map[string]*domain.Macro, len(macros))
	for i := range macros {
		m[macros[i].Name] = &macros[i]
	}
	return &fakeMacroRepo{macros: m}
}

func (f *fakeMacroRepo) Find(name string) (*domain.Macro, bool) {
	m, ok := f.macros[name]
	return m, ok
}

func (f *fakeMacroRepo) List() []domain.Macro {
	out := make([]domain.Macro, 0, len(f.macros))
	for _, m := range f.macros {
		out = append(out, *m)
	}
	return out
}

type fakeEmailRepo struct {
	byUser map[string][]*domain.EmailRecord
}

func (f *fakeEmailRepo) ListForUser(_ context.Context, user string) ([]*domain.EmailRecord, error) {
	return f.byUser[user], nil
}

func (f *fakeEmailRepo) GetByID(_ context.Context, user, id string) (*domain.EmailRecord, error) {
	for _, e := range f.byUser[user] {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.NotFound()
}

func (f *fakeEmailRepo) Exists(_ context.Context, id string) (bool, error) {
	for _, records := range f.byUser {
		for _, e := range records {
			if e.ID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeEmailRepo) Insert(_ context.Context, e *domain.EmailRecord) error {
	if f.byUser == nil {
		f.byUser = make(map[string][]*domain.EmailRecord)
	}
	f.byUser[e.User] = append(f.byUser[e.User], e)
	return nil
}

func testDeps(files map[string][]byte, macros ...domain.Macro) *Deps {
	cache := urlcache.New[string, string](1000)
	return &Deps{
		Content:    &fakeContentStore{files: files},
		Redirector: NewRedirector(cache),
		Macros:     newFakeMacroRepo(macros...),
	}
}
