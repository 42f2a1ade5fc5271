package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/common/models"
	"gorm.io/gorm"
)

// CarnivalStore is the slice of the carnival repository the reconciler
// drives. Every method is individually transactional; RetireAll runs the
// whole retire pass in one transaction.
type CarnivalStore interface {
	ListActiveExternal(ctx context.Context, sourceOrigin string) ([]models.Carnival, error)
	CreateFromCandidate(ctx context.Context, sourceOrigin string, c models.CandidateEvent, now time.Time) (models.Carnival, error)
	UpdateFromCandidate(ctx context.Context, id uuid.UUID, c models.CandidateEvent, now time.Time) error
	TouchExternalSync(ctx context.Context, id uuid.UUID, now time.Time) error
	RetireAll(ctx context.Context, ids []uuid.UUID, now time.Time) error
}

// Reconciler converges the stored carnivals of one external source to match
// the candidate set the source currently advertises.
type Reconciler struct {
	store      CarnivalStore
	normalizer *Normalizer
	observer   SyncObserver
	now        func() time.Time
}

func NewReconciler(store CarnivalStore, normalizer *Normalizer, observer SyncObserver, now func() time.Time) *Reconciler {
	if observer == nil {
		observer = NopObserver{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{store: store, normalizer: normalizer, observer: observer, now: now}
}

// Run consumes the raw sequence one record at a time and applies
// create/update/touch decisions, then retires unowned carnivals the source
// no longer advertises. A deadline mid-run finishes the current record,
// skips the retire pass and returns ErrDeadlineExceeded with the partial
// counters.
func (r *Reconciler) Run(ctx context.Context, sourceName string, raws RawIterator) (models.SyncOutcome, error) {
	var outcome models.SyncOutcome

	origin := models.ExternalOrigin(sourceName)
	existing, err := r.store.ListActiveExternal(ctx, origin)
	if err != nil {
		return outcome, fmt.Errorf("listing carnivals for %s: %w", origin, err)
	}

	index := make(map[string]models.Carnival, len(existing))
	pendingRetire := make(map[string]models.Carnival, len(existing))
	for _, carnival := range existing {
		index[carnival.ExternalKey] = carnival
		pendingRetire[carnival.ExternalKey] = carnival
	}

	// Content hash currently stored per key, including writes made this run,
	// so a duplicate key later in the sequence can still win.
	hashes := make(map[string]string, len(index))
	for key, carnival := range index {
		hashes[key] = carnival.ContentHash
	}
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return outcome, ErrDeadlineExceeded
			}
			return outcome, err
		}

		raw, ok, err := raws.Next(ctx)
		if err != nil {
			var se *SourceError
			if errors.As(err, &se) && se.Kind == SourceKindTimeout {
				return outcome, ErrDeadlineExceeded
			}
			return outcome, err
		}
		if !ok {
			break
		}

		candidate, err := r.normalizer.Normalize(raw)
		if err != nil {
			if IsRejected(err) {
				outcome.Rejected++
				r.observer.RecordProcessed(raw.SourceID, ActionRejected)
				continue
			}
			return outcome, err
		}

		now := r.now()
		key := candidate.ExternalKey
		_, duplicate := seen[key]
		seen[key] = struct{}{}
		delete(pendingRetire, key)

		if duplicate {
			outcome.Duplicates = append(outcome.Duplicates, key)
			r.observer.RecordProcessed(key, ActionDuplicate)
		} else {
			outcome.EventsProcessed++
		}

		stored, exists := index[key]
		if !exists {
			created, err := r.store.CreateFromCandidate(ctx, origin, candidate, now)
			if err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					outcome.Conflicts = append(outcome.Conflicts, key)
					r.observer.RecordProcessed(key, ActionConflict)
					continue
				}
				return outcome, storeFailure("creating carnival "+key, err)
			}
			index[key] = created
			hashes[key] = candidate.ContentHash
			if !duplicate {
				outcome.EventsCreated++
			}
			r.observer.RecordProcessed(key, ActionCreated)
			continue
		}

		if hashes[key] != candidate.ContentHash {
			if err := r.store.UpdateFromCandidate(ctx, stored.ID, candidate, now); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					outcome.Conflicts = append(outcome.Conflicts, key)
					r.observer.RecordProcessed(key, ActionConflict)
					continue
				}
				return outcome, storeFailure("updating carnival "+key, err)
			}
			hashes[key] = candidate.ContentHash
			if !duplicate {
				outcome.EventsUpdated++
			}
			r.observer.RecordProcessed(key, ActionUpdated)
			continue
		}

		if err := r.store.TouchExternalSync(ctx, stored.ID, now); err != nil {
			return outcome, storeFailure("touching carnival "+key, err)
		}
		r.observer.RecordProcessed(key, ActionUnchanged)
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return outcome, ErrDeadlineExceeded
		}
		return outcome, err
	}

	// Retire pass. Claimed carnivals survive source disappearance.
	retireIDs := make([]uuid.UUID, 0, len(pendingRetire))
	for key, carnival := range pendingRetire {
		if carnival.OwnerUserID != nil {
			outcome.OwnedSurvivors = append(outcome.OwnedSurvivors, key)
			continue
		}
		retireIDs = append(retireIDs, carnival.ID)
		r.observer.RecordProcessed(key, ActionRetired)
	}
	sort.Strings(outcome.OwnedSurvivors)

	if len(retireIDs) > 0 {
		if err := r.store.RetireAll(ctx, retireIDs, r.now()); err != nil {
			return outcome, storeFailure("retiring carnivals", err)
		}
		outcome.EventsRetired = len(retireIDs)
	}

	return outcome, nil
}

// storeFailure translates a deadline aborting an in-flight store call into
// the partial-run sentinel; gorm cancels the running query when the context
// fires, so the deadline can surface from inside any write.
func storeFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadlineExceeded
	}
	return fmt.Errorf("%s: %w", op, err)
}
