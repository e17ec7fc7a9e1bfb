package repository

import (
	"encoding/json"
	"os"

	"github.com/harrowgate/epv/internal/domain"
)

// MacroRepository is a static, in-memory catalog loaded once from a JSON
// file at startup; macros do not change at runtime.
type MacroRepository struct {
	macros map[string]*domain.Macro
	list   []domain.Macro
}

// LoadMacroRepository reads a JSON array of macros from path.
func LoadMacroRepository(path string) (*MacroRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []domain.Macro
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	return NewMacroRepository(list), nil
}

func NewMacroRepository(list []domain.Macro) *MacroRepository {
	macros := make(map[string]*domain.Macro, len(list))
	for i := range list {
		macros[list[i].Name] = &list[i]
	}
	return &MacroRepository{macros: macros, list: list}
}

func (r *MacroRepository) Find(name string) (*domain.Macro, bool) {
	m, ok := r.macros[name]
	return m, ok
}

func (r *MacroRepository) List() []domain.Macro {
	return r.list
}
