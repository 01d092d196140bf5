package emitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
)

// ActivityEmitter appends entries to users' activity feeds.
type ActivityEmitter struct {
	repo repository.ActivityRepository
}

func NewActivityEmitter(repo repository.ActivityRepository) *ActivityEmitter {
	return &ActivityEmitter{repo: repo}
}

// Record writes every entry, continuing past failures, and returns them joined.
func (e *ActivityEmitter) Record(ctx context.Context, entries ...models.Activity) error {
	var errs []error
	for i := range entries {
		entry := entries[i]
		if err := e.repo.Create(ctx, &entry); err != nil {
			errs = append(errs, fmt.Errorf("activity %s for %s: %w", entry.Type, entry.UserID, err))
		}
	}
	return errors.Join(errs...)
}
