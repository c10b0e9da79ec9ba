package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"souqlive/app/client/memstore"
	"souqlive/app/model"

	"github.com/samber/do"
	"github.com/samber/oops"
)

// Store is the document side of the memory service used for snapshots.
type Store interface {
	PutDocument(ctx context.Context, key string, doc json.RawMessage) error
	GetDocument(ctx context.Context, key string) (json.RawMessage, bool, error)
}

// Service persists thread state to the memory store and reads it back on
// rehydration. Persistence is best-effort: the caller logs failures and
// retries at the next natural persistence point instead of blocking the
// turn.
type Service struct {
	store Store
	now   func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	return NewWithStore(do.MustInvoke[*memstore.Client](di)), nil
}

func NewWithStore(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

func Key(threadID string) string {
	return "snapshot:" + threadID
}

func (s *Service) Persist(ctx context.Context, snap model.Snapshot) error {
	snap.SavedAt = s.now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return oops.Wrapf(err, "failed to marshal snapshot for thread %q", snap.ThreadID)
	}

	if err = s.store.PutDocument(ctx, Key(snap.ThreadID), data); err != nil {
		return oops.Wrapf(err, "failed to persist snapshot for thread %q", snap.ThreadID)
	}

	return nil
}

// Rehydrate reads the latest snapshot back. A missing snapshot is the
// expected path for a brand-new thread: it yields a fresh state with
// found=false, not an error.
func (s *Service) Rehydrate(ctx context.Context, threadID string) (model.Snapshot, bool, error) {
	fresh := model.Snapshot{
		ThreadID: threadID,
		Facts:    model.FactTable{},
	}

	data, found, err := s.store.GetDocument(ctx, Key(threadID))
	if err != nil {
		return fresh, false, oops.Wrapf(err, "failed to read snapshot for thread %q", threadID)
	}
	if !found {
		return fresh, false, nil
	}

	var snap model.Snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return fresh, false, oops.Wrapf(err, "failed to decode snapshot for thread %q", threadID)
	}

	snap.ThreadID = threadID
	if snap.Facts == nil {
		snap.Facts = model.FactTable{}
	}

	return snap, true, nil
}
