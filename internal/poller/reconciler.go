package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/social"
)

// IDResolver resolves a stronger platform identifier for a handle.
// Best-effort; reconciliation falls back to the scraped identifier.
type IDResolver interface {
	ResolveID(ctx context.Context, handle, accountID, credential string) (string, error)
}

// WelcomeDispatcher receives newly discovered, not-yet-welcomed
// followers. Dispatch is fire-and-forget from the reconciler's side.
type WelcomeDispatcher interface {
	Dispatch(ctx context.Context, account *models.TrackedAccount, follower *models.KnownFollower)
}

// Reconciler compares a scraped follower list against the known-followers
// ledger and records the genuinely new entries.
type Reconciler struct {
	ledger    models.KnownFollowerRepository
	resolver  IDResolver
	welcomer  WelcomeDispatcher
	logger    *slog.Logger
	batchSize int
}

func NewReconciler(
	ledger models.KnownFollowerRepository,
	resolver IDResolver,
	welcomer WelcomeDispatcher,
	logger *slog.Logger,
	batchSize int,
) *Reconciler {
	if batchSize < 1 {
		batchSize = 30
	}

	return &Reconciler{
		ledger:    ledger,
		resolver:  resolver,
		welcomer:  welcomer,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Reconcile filters the scraped list down to followers not yet in the
// ledger, matching on both identifier and case-insensitive handle (the
// identifier may be absent or weak on freshly scraped entries). New
// followers are inserted not-welcomed via an idempotent write, then
// handed to the welcome dispatcher. Returns the number actually inserted.
func (r *Reconciler) Reconcile(ctx context.Context, account *models.TrackedAccount, scraped []social.Follower) (int, error) {
	known, err := r.ledger.ListByAccount(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load ledger: %w", err)
	}

	knownIDs := make(map[string]bool, len(known))
	knownHandles := make(map[string]bool, len(known))
	for _, k := range known {
		knownIDs[k.FollowerID] = true
		if k.Handle != "" {
			knownHandles[strings.ToLower(k.Handle)] = true
		}
	}

	var fresh []social.Follower
	seen := make(map[string]bool)
	for _, f := range scraped {
		handle := strings.ToLower(f.Handle)
		if handle == "" && f.ID == "" {
			continue
		}
		if f.ID != "" && knownIDs[f.ID] {
			continue
		}
		if handle != "" && knownHandles[handle] {
			continue
		}
		// Dedup within a single scrape
		key := f.ID + "/" + handle
		if seen[key] {
			continue
		}
		seen[key] = true

		fresh = append(fresh, f)
		// Bound per-cycle work; the overflow stays unknown to the
		// ledger and is rediscovered by a later cycle
		if len(fresh) == r.batchSize {
			break
		}
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	records := make([]*models.KnownFollower, 0, len(fresh))
	for _, f := range fresh {
		id := f.ID
		if r.resolver != nil && f.Handle != "" {
			resolved, err := r.resolver.ResolveID(ctx, f.Handle, account.ID, account.Credential)
			if err != nil {
				r.logger.Debug("id resolution failed, keeping scraped id",
					"handle", f.Handle,
					"error", err,
				)
			} else if resolved != "" {
				id = resolved
			}
		}
		if id == "" {
			id = strings.ToLower(f.Handle)
		}

		records = append(records, &models.KnownFollower{
			AccountID:  account.ID,
			FollowerID: id,
			Handle:     f.Handle,
			Welcomed:   false,
		})
	}

	inserted, err := r.ledger.InsertIfAbsent(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to insert new followers: %w", err)
	}

	// Only records the ledger actually created get a welcome. A record
	// that hit the conflict path (the resolver upgraded a changed handle
	// to an id already on file) belongs to a follower we already know.
	if r.welcomer != nil {
		for _, record := range inserted {
			r.welcomer.Dispatch(ctx, account, record)
		}
	}

	r.logger.Info("reconciled scraped followers",
		"username", account.Username,
		"scraped", len(scraped),
		"new", len(inserted),
	)

	return len(inserted), nil
}
