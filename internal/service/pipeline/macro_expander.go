package pipeline

import "github.com/harrowgate/epv/internal/domain"

// expandMacros walks actions once, replacing each Macro(name) in place with
// the body of the configured macro. Expansion is not recursive: a macro
// body containing its own Macro(_) is inlined verbatim and will fail with
// InvalidInput when that leaf is finally executed.
func expandMacros(macros domain.MacroRepository, actions []domain.Action) ([]domain.Action, error) {
	if len(actions) == 0 {
		return actions, nil
	}
	out := make([]domain.Action, 0, len(actions))
	for _, a := range actions {
		if a.Name != domain.ActionMacro {
			out = append(out, a)
			continue
		}
		m, ok := macros.Find(a.MacroName)
		if !ok {
			return nil, domain.InvalidInput(a.MacroName)
		}
		out = append(out, m.Actions...)
	}
	return out, nil
}
