package liveview

import (
	"context"

	"github.com/golang/glog"
)

// StalenessFunc decides whether a refresh for the filter should hit the
// remote source at all. The default treats the store as always stale;
// callers with a TTL or etag scheme plug their own in.
type StalenessFunc func(filter ZoneFilter) bool

func AlwaysStale(filter ZoneFilter) bool {
	return true
}

// RefreshPolicy pulls the remote collection into the store. Failures
// propagate to the caller; retry is the caller's responsibility.
type RefreshPolicy struct {
	source RemoteSource
	store  CollectionStore
	stale  StalenessFunc
}

func NewRefreshPolicyWithDefaults(source RemoteSource, store CollectionStore) *RefreshPolicy {
	return NewRefreshPolicy(source, store, AlwaysStale)
}

func NewRefreshPolicy(source RemoteSource, store CollectionStore, stale StalenessFunc) *RefreshPolicy {
	return &RefreshPolicy{
		source: source,
		store:  store,
		stale:  stale,
	}
}

// Refresh fetches the remote collection scoped by the filter and upserts it
// into the store. A `*FetchError` means the remote fetch failed; a
// `*StoreError` means the store write failed. Either way the store keeps
// whatever it already held.
func (self *RefreshPolicy) Refresh(ctx context.Context, filter ZoneFilter) error {
	if !self.stale(filter) {
		glog.V(2).Infof("[refresh]%s not stale\n", filter)
		return nil
	}

	var items []Item
	var err error
	if filter.IsFiltered() {
		items, err = self.source.FetchZone(ctx, filter.Zone())
	} else {
		items, err = self.source.FetchAll(ctx)
	}
	if err != nil {
		return &FetchError{Err: err}
	}

	if err := self.store.UpsertAll(ctx, items); err != nil {
		return &StoreError{Err: err}
	}

	glog.V(1).Infof("[refresh]%s count=%d\n", filter, len(items))
	return nil
}
