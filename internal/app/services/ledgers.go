package services

import (
	"context"
	"errors"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

// CombineLedgers opens every factory for each run and records outcomes to all of them in order.
func CombineLedgers(factories ...ports.LedgerFactory) ports.LedgerFactory {
	return combinedFactory(factories)
}

type combinedFactory []ports.LedgerFactory

func (f combinedFactory) Open() (ports.LedgerSet, error) {
	sets := make(combinedSet, 0, len(f))
	for _, factory := range f {
		if factory == nil {
			continue
		}
		set, err := factory.Open()
		if err != nil {
			return nil, errors.Join(err, sets.Close())
		}
		sets = append(sets, set)
	}
	return sets, nil
}

type combinedSet []ports.LedgerSet

func (s combinedSet) Record(ctx context.Context, outcome domain.Outcome) error {
	for _, set := range s {
		if err := set.Record(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

func (s combinedSet) Close() error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
