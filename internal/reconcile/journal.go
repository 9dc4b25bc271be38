package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
)

const journalPrefix = "checkout:journal:"

func StorageKey(userID string) string {
	return journalPrefix + userID
}

// Journal stores pending cleanups per user in local storage, one JSON list
// per user ordered by commit time.
type Journal struct {
	kv kv.Store
	mu sync.Mutex
}

func NewJournal(store kv.Store) *Journal {
	return &Journal{kv: store}
}

func (j *Journal) Add(ctx context.Context, entry domain.PendingCleanup) error {
	return j.Update(ctx, entry)
}

// Update replaces the entry with the same order ID, adding it if missing.
func (j *Journal) Update(ctx context.Context, entry domain.PendingCleanup) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx, entry.UserID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].OrderID == entry.OrderID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return j.save(ctx, entry.UserID, entries)
}

func (j *Journal) Remove(ctx context.Context, userID, orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx, userID)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.OrderID != orderID {
			kept = append(kept, e)
		}
	}
	return j.save(ctx, userID, kept)
}

func (j *Journal) List(ctx context.Context, userID string) ([]domain.PendingCleanup, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load(ctx, userID)
}

// Users returns every user with at least one pending cleanup.
func (j *Journal) Users(ctx context.Context) ([]string, error) {
	keys, err := j.kv.Keys(ctx, journalPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal keys: %w", err)
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, journalPrefix))
	}
	sort.Strings(users)
	return users, nil
}

func (j *Journal) load(ctx context.Context, userID string) ([]domain.PendingCleanup, error) {
	data, err := j.kv.Get(ctx, StorageKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cleanup journal: %w", err)
	}
	var entries []domain.PendingCleanup
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal cleanup journal failed: %w", err)
	}
	return entries, nil
}

func (j *Journal) save(ctx context.Context, userID string, entries []domain.PendingCleanup) error {
	if len(entries) == 0 {
		if err := j.kv.Delete(ctx, StorageKey(userID)); err != nil {
			return fmt.Errorf("failed to clear cleanup journal: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cleanup journal failed: %w", err)
	}
	if err := j.kv.Set(ctx, StorageKey(userID), data); err != nil {
		return fmt.Errorf("failed to save cleanup journal: %w", err)
	}
	return nil
}
