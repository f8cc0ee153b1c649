package liveview

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRefreshAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &funcRemoteSource{
		fetchAll: func(ctx context.Context) ([]Item, error) {
			return []Item{itemApple, itemBanana, itemCactus}, nil
		},
	}
	store := NewMemoryCollectionStore(ctx)
	refresh := NewRefreshPolicyWithDefaults(source, store)

	err := refresh.Refresh(ctx, NoZone)
	assert.Equal(t, err, nil)
	assert.Equal(t, store.Query(NoZone), []Item{itemApple, itemBanana, itemCactus})
}

func TestRefreshZone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetchedZone := atomic.Int32{}
	source := &funcRemoteSource{
		fetchZone: func(ctx context.Context, zone int) ([]Item, error) {
			fetchedZone.Store(int32(zone))
			return []Item{itemApple, itemBanana}, nil
		},
	}
	store := NewMemoryCollectionStore(ctx)
	refresh := NewRefreshPolicyWithDefaults(source, store)

	err := refresh.Refresh(ctx, FilterZone(9))
	assert.Equal(t, err, nil)
	assert.Equal(t, fetchedZone.Load(), int32(9))
	assert.Equal(t, store.Query(NoZone), []Item{itemApple, itemBanana})
}

func TestRefreshNotStale(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetchCount := atomic.Int32{}
	source := &funcRemoteSource{
		fetchAll: func(ctx context.Context) ([]Item, error) {
			fetchCount.Add(1)
			return []Item{itemApple}, nil
		},
	}
	store := NewMemoryCollectionStore(ctx)
	neverStale := func(filter ZoneFilter) bool {
		return false
	}
	refresh := NewRefreshPolicy(source, store, neverStale)

	err := refresh.Refresh(ctx, NoZone)
	assert.Equal(t, err, nil)
	assert.Equal(t, fetchCount.Load(), int32(0))
	assert.Equal(t, store.Query(NoZone), []Item{})
}

func TestRefreshFetchFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cause := errors.New("remote unreachable")
	source := &funcRemoteSource{
		fetchAll: func(ctx context.Context) ([]Item, error) {
			return nil, cause
		},
	}
	store := NewMemoryCollectionStore(ctx)
	store.UpsertAll(ctx, []Item{itemCactus})
	refresh := NewRefreshPolicyWithDefaults(source, store)

	err := refresh.Refresh(ctx, NoZone)
	var fetchError *FetchError
	assert.Equal(t, errors.As(err, &fetchError), true)
	assert.Equal(t, errors.Is(err, cause), true)

	// the store keeps whatever it already held
	assert.Equal(t, store.Query(NoZone), []Item{itemCactus})
}

func TestRefreshStoreFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &funcRemoteSource{
		fetchAll: func(ctx context.Context) ([]Item, error) {
			return []Item{itemApple}, nil
		},
	}
	store := &failStore{CollectionStore: NewMemoryCollectionStore(ctx)}
	refresh := NewRefreshPolicyWithDefaults(source, store)

	err := refresh.Refresh(ctx, NoZone)
	var storeError *StoreError
	assert.Equal(t, errors.As(err, &storeError), true)
}
