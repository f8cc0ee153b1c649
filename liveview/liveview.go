package liveview

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"golang.org/x/exp/slices"
)

/*
Reconciles a persisted collection with a remote catalog and exposes a live,
continuously sorted view of it:
- the store is the source of truth for what consumers see
- refreshes pull from the remote source and land in the store,
  which re-emits to all live queries
- the front-of-list ordering comes from a remote sort order,
  fetched once per process and memoized
- consumers always observe the most recent computed view
*/

// one row of the synced collection
// rows are replaced by id on upsert, never duplicated
type Item struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Zone int    `json:"zone"`
}

func NewItemId() string {
	return ulid.Make().String()
}

// comparable
// the zero value matches every item
type ZoneFilter struct {
	filtered bool
	zone     int
}

// NoZone matches every item. It equals no zone filter.
var NoZone = ZoneFilter{}

func FilterZone(zone int) ZoneFilter {
	return ZoneFilter{
		filtered: true,
		zone:     zone,
	}
}

func (self ZoneFilter) IsFiltered() bool {
	return self.filtered
}

// meaningful only when `IsFiltered`
func (self ZoneFilter) Zone() int {
	return self.zone
}

func (self ZoneFilter) Matches(item Item) bool {
	return !self.filtered || self.zone == item.Zone
}

func (self ZoneFilter) String() string {
	if self.filtered {
		return fmt.Sprintf("zone(%d)", self.zone)
	}
	return "all"
}

// SortOrder is the remote front-of-list ordering, a sequence of item ids.
// Empty is a legitimate resolved order and means pure name order.
type SortOrder []string

func (self SortOrder) positions() map[string]int {
	positions := map[string]int{}
	for i, id := range self {
		if _, ok := positions[id]; !ok {
			positions[id] = i
		}
	}
	return positions
}

// SortItems orders items into the view order:
// ids present in `order` first, by ascending position,
// then all other items, by ascending name.
// Ties within an equal position break by ascending name.
// The input is not modified.
func SortItems(items []Item, order SortOrder) []Item {
	positions := order.positions()
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a Item, b Item) int {
		aPosition, aListed := positions[a.Id]
		bPosition, bListed := positions[b.Id]
		if aListed != bListed {
			if aListed {
				return -1
			}
			return 1
		}
		if aListed && aPosition != bPosition {
			return aPosition - bPosition
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}

// a remote source failure. Recovered locally where possible,
// surfaced as observable state otherwise. Never fatal.
type FetchError struct {
	Err error
}

func (self *FetchError) Error() string {
	return fmt.Sprintf("fetch error: %s", self.Err)
}

func (self *FetchError) Unwrap() error {
	return self.Err
}

// a store write failure
type StoreError struct {
	Err error
}

func (self *StoreError) Error() string {
	return fmt.Sprintf("store error: %s", self.Err)
}

func (self *StoreError) Unwrap() error {
	return self.Err
}
