package liveview

import (
	"context"
	"strings"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CollectionStore is the persisted collection. The engine behind it is an
// external collaborator; it only needs to provide a live, filterable read
// and a bulk replace-on-id-conflict write.
type CollectionStore interface {
	// LiveQuery emits a name-ordered snapshot of the matching items on
	// subscribe and again after every store write. Delivery is conflated.
	// The subscription ends when the context ends or on `Close`.
	LiveQuery(ctx context.Context, filter ZoneFilter) StoreSubscription

	// replace-on-id-conflict
	UpsertAll(ctx context.Context, items []Item) error
}

type StoreSubscription interface {
	// conflated, capacity 1, latest wins. Left open on close.
	Updates() <-chan []Item
	Close()
}

// MemoryCollectionStore is the in-process reference implementation,
// used by tests and the ctl.
type MemoryCollectionStore struct {
	ctx context.Context

	stateLock sync.Mutex
	items     map[string]Item
	version   uint64
	nextSubId int
	subs      map[int]*memoryStoreSubscription
}

func NewMemoryCollectionStore(ctx context.Context) *MemoryCollectionStore {
	return &MemoryCollectionStore{
		ctx:   ctx,
		items: map[string]Item{},
		subs:  map[int]*memoryStoreSubscription{},
	}
}

func (self *MemoryCollectionStore) UpsertAll(ctx context.Context, items []Item) error {
	self.stateLock.Lock()
	for _, item := range items {
		self.items[item.Id] = item
	}
	self.version += 1
	version := self.version
	subs := maps.Values(self.subs)
	snapshots := make([][]Item, len(subs))
	for i, sub := range subs {
		snapshots[i] = self.snapshot(sub.filter)
	}
	self.stateLock.Unlock()

	for i, sub := range subs {
		sub.publish(snapshots[i], version)
	}
	glog.V(2).Infof("[store]upsert count=%d subs=%d\n", len(items), len(subs))
	return nil
}

func (self *MemoryCollectionStore) LiveQuery(ctx context.Context, filter ZoneFilter) StoreSubscription {
	cancelCtx, cancel := context.WithCancel(ctx)

	sub := &memoryStoreSubscription{
		filter:  filter,
		updates: make(chan []Item, 1),
		cancel:  cancel,
	}

	self.stateLock.Lock()
	subId := self.nextSubId
	self.nextSubId += 1
	self.subs[subId] = sub
	snapshot := self.snapshot(filter)
	version := self.version
	self.stateLock.Unlock()

	sub.publish(snapshot, version)

	go func() {
		<-cancelCtx.Done()
		self.stateLock.Lock()
		delete(self.subs, subId)
		self.stateLock.Unlock()
	}()

	return sub
}

// Query returns a one-shot name-ordered snapshot.
func (self *MemoryCollectionStore) Query(filter ZoneFilter) []Item {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.snapshot(filter)
}

// must be called with `stateLock`
func (self *MemoryCollectionStore) snapshot(filter ZoneFilter) []Item {
	items := []Item{}
	for _, item := range self.items {
		if filter.Matches(item) {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a Item, b Item) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
	return items
}

type memoryStoreSubscription struct {
	filter  ZoneFilter
	cancel  context.CancelFunc
	updates chan []Item

	// serializes publishes so snapshots cannot invert
	publishLock      sync.Mutex
	publishedVersion uint64
}

func (self *memoryStoreSubscription) publish(snapshot []Item, version uint64) {
	self.publishLock.Lock()
	defer self.publishLock.Unlock()

	if version < self.publishedVersion {
		// a newer snapshot was already published
		return
	}
	self.publishedVersion = version
	sendLatest(self.updates, snapshot)
}

func (self *memoryStoreSubscription) Updates() <-chan []Item {
	return self.updates
}

func (self *memoryStoreSubscription) Close() {
	self.cancel()
}
