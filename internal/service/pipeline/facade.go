package pipeline

import (
	"context"

	"github.com/harrowgate/epv/internal/domain"
)

// Facade is the entry point used by the HTTP handler for execute-script:
// it loads the caller's emails, seeds the pipeline, and runs the driver.
type Facade struct {
	Emails domain.EmailRepository
	Deps   *Deps
}

func NewFacade(emails domain.EmailRepository, deps *Deps) *Facade {
	return &Facade{Emails: emails, Deps: deps}
}

// Execute loads every email owned by user, runs script against the seeded
// vector, and returns the resulting elements unshaped; callers that want a
// tabular response pass the result through Flatten themselves.
func (f *Facade) Execute(ctx context.Context, user string, script domain.Script) ([]domain.Element, error) {
	records, err := f.Emails.ListForUser(ctx, user)
	if err != nil {
		return nil, domain.InternalErr()
	}

	elements := make([]domain.Element, len(records))
	for i, r := range records {
		elements[i] = domain.NewEmailElement(r)
	}

	return Run(ctx, f.Deps, script.Actions, elements)
}
