package liveview

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// state surfaced to the consumer alongside the view
type SelectorState struct {
	Filter ZoneFilter
	// true while the latest triggered refresh is outstanding
	Loading bool
	// message of the latest failed refresh, empty when none.
	// cleared by `ClearError` or by the next successful refresh.
	Error string
}

type ViewFunction = func(view []Item)
type SelectorStateFunction = func(state SelectorState)

// ViewSelector holds the current zone filter and derives everything else:
// the active pipeline, the sorted view, and the loading/error signals of
// refresh attempts.
//
// Switching the filter tears down the previous pipeline before starting the
// new one. A view computed for a superseded filter is never delivered after
// the switch. A refresh superseded by a newer switch still lands in the
// store, but no longer drives the loading/error signals.
type ViewSelector struct {
	ctx    context.Context
	cancel context.CancelFunc

	store   CollectionStore
	cache   *SortOrderCache
	refresh *RefreshPolicy

	// guards the pipeline switch and the seq checks.
	// watchable updates that must be atomic with a seq check
	// happen inside this lock.
	stateLock   sync.Mutex
	pipeline    *SortedViewPipeline
	pipelineSeq int
	refreshSeq  int

	state *Watchable[SelectorState]
	view  *Watchable[[]Item]
}

func NewViewSelector(
	ctx context.Context,
	store CollectionStore,
	cache *SortOrderCache,
	refresh *RefreshPolicy,
) *ViewSelector {
	cancelCtx, cancel := context.WithCancel(ctx)

	selector := &ViewSelector{
		ctx:     cancelCtx,
		cancel:  cancel,
		store:   store,
		cache:   cache,
		refresh: refresh,
		state:   NewWatchable(SelectorState{Filter: NoZone}),
		view:    NewWatchable[[]Item](nil),
	}

	selector.stateLock.Lock()
	selector.switchPipeline(NoZone)
	selector.stateLock.Unlock()

	return selector
}

func (self *ViewSelector) SetFilter(zone int) {
	self.setFilter(FilterZone(zone))
}

func (self *ViewSelector) ClearFilter() {
	self.setFilter(NoZone)
}

func (self *ViewSelector) IsFiltered() bool {
	return self.state.Get().Filter.IsFiltered()
}

func (self *ViewSelector) Filter() ZoneFilter {
	return self.state.Get().Filter
}

func (self *ViewSelector) setFilter(filter ZoneFilter) {
	self.stateLock.Lock()
	previous := self.state.Get().Filter
	if previous != filter {
		self.state.Update(func(state SelectorState) SelectorState {
			state.Filter = filter
			return state
		})
		self.switchPipeline(filter)
	}
	self.stateLock.Unlock()

	glog.V(1).Infof("[sel]filter %s -> %s\n", previous, filter)
	self.triggerRefresh(filter)
}

// must be called with `stateLock`
func (self *ViewSelector) switchPipeline(filter ZoneFilter) {
	if self.pipeline != nil {
		self.pipeline.Close()
	}
	self.pipelineSeq += 1
	seq := self.pipelineSeq
	pipeline := NewSortedViewPipeline(self.ctx, self.store, self.cache, filter)
	self.pipeline = pipeline
	go self.relayViews(pipeline, seq)
}

func (self *ViewSelector) relayViews(pipeline *SortedViewPipeline, seq int) {
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-pipeline.ctx.Done():
			return
		case view := <-pipeline.Views():
			self.stateLock.Lock()
			current := self.pipelineSeq == seq
			if current {
				self.view.Set(view)
			}
			self.stateLock.Unlock()
			if !current {
				// superseded by a filter switch, discard
				return
			}
		}
	}
}

// Refresh re-triggers a refresh of the current filter.
// Used by the change notifier and by consumer pull-to-refresh.
func (self *ViewSelector) Refresh() {
	self.triggerRefresh(self.state.Get().Filter)
}

func (self *ViewSelector) triggerRefresh(filter ZoneFilter) {
	self.stateLock.Lock()
	self.refreshSeq += 1
	seq := self.refreshSeq
	self.state.Update(func(state SelectorState) SelectorState {
		state.Loading = true
		return state
	})
	self.stateLock.Unlock()

	go func() {
		err := self.refresh.Refresh(self.ctx, filter)

		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.refreshSeq != seq {
			// superseded. the rows already landed in the store, which is
			// fine, but the signals reflect only the latest refresh.
			return
		}
		self.state.Update(func(state SelectorState) SelectorState {
			state.Loading = false
			if err != nil {
				state.Error = err.Error()
			} else {
				state.Error = ""
			}
			return state
		})
		if err != nil {
			glog.Infof("[sel]refresh error %s = %s\n", filter, err)
		}
	}()
}

// ClearError acknowledges the surfaced refresh error.
func (self *ViewSelector) ClearError() {
	self.state.Update(func(state SelectorState) SelectorState {
		state.Error = ""
		return state
	})
}

func (self *ViewSelector) State() SelectorState {
	return self.state.Get()
}

// View returns the current sorted view. nil until the first
// view is computed.
func (self *ViewSelector) View() []Item {
	return self.view.Get()
}

// the callback fires on every newly computed view for the current filter.
// returns the remove function.
// callbacks must not synchronously call back into the selector;
// dispatch to a goroutine instead.
func (self *ViewSelector) AddViewCallback(callback ViewFunction) func() {
	return self.view.AddCallback(callback)
}

// the callback fires on every filter/loading/error transition.
// returns the remove function.
func (self *ViewSelector) AddStateCallback(callback SelectorStateFunction) func() {
	return self.state.AddCallback(callback)
}

// WatchViews returns a conflated channel of views, primed with the
// current one. Left open on close.
func (self *ViewSelector) WatchViews(ctx context.Context) <-chan []Item {
	return self.view.Watch(ctx)
}

func (self *ViewSelector) WatchState(ctx context.Context) <-chan SelectorState {
	return self.state.Watch(ctx)
}

func (self *ViewSelector) Close() {
	self.cancel()
}
