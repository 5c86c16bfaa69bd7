package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/cache"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultHistorySize = 32
	fetchFailedMessage = "Could not load titles, please try again"
)

// ItemStore is the cache shared by every view and the reaction coordinator.
type ItemStore = cache.ItemStore[domain.ItemKey, domain.CatalogItem]

func NewItemStore() *ItemStore {
	return cache.NewItemStore[domain.ItemKey, domain.CatalogItem]()
}

type ViewConfig struct {
	Name string
	// ClampToTotalPages caps SetPage at the last reported TotalPages.
	ClampToTotalPages bool
	HistorySize       int
}

// ViewSnapshot is a consistent copy of the view state.
type ViewSnapshot struct {
	Name   string             `json:"name"`
	Status domain.ViewStatus  `json:"status"`
	Filter domain.FilterState `json:"filter"`
	Page   int                `json:"page"`
	// Data is set only while Status is ViewReady.
	Data  *domain.Page `json:"data,omitempty"`
	Err   error        `json:"-"`
	Stale bool         `json:"stale"`
	Seq   uint64       `json:"seq"`
}

type ViewListener func(snap ViewSnapshot)

type inflightFetch struct {
	key    string
	cancel context.CancelFunc
}

var _ ports.StaleMarker = (*ViewState)(nil)

// ViewState holds filter, page and result of one list view. Every change of the
// (filter, page) pair issues one fetch; only the response for the most recent
// pair may commit.
type ViewState struct {
	mu sync.Mutex

	status     domain.ViewStatus
	filter     domain.FilterState
	page       int
	data       *domain.Page
	err        error
	stale      bool
	totalPages int
	seq        uint64
	epoch      uint64
	closed     bool

	inflight map[uint64]inflightFetch
	held     []domain.ItemKey

	history      map[string]domain.Page
	historyOrder []string

	listeners map[uint64]ViewListener
	nextSub   uint64

	group singleflight.Group
	wg    sync.WaitGroup

	cfg      ViewConfig
	fetcher  ports.PageFetcher
	items    *ItemStore
	notifier ports.Notifier
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
}

// NewViewState creates an Idle view. items, notifier and metrics may be nil.
func NewViewState(
	cfg ViewConfig,
	fetcher ports.PageFetcher,
	items *ItemStore,
	notifier ports.Notifier,
	metrics ports.MetricsCollector,
	log *zap.SugaredLogger,
) *ViewState {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ViewState{
		status:    domain.ViewIdle,
		page:      1,
		inflight:  make(map[uint64]inflightFetch),
		history:   make(map[string]domain.Page),
		listeners: make(map[uint64]ViewListener),
		cfg:       cfg,
		fetcher:   fetcher,
		items:     items,
		notifier:  notifier,
		metrics:   metrics,
		logger:    log.With("view", cfg.Name),
	}
}

func (v *ViewState) Name() string {
	return v.cfg.Name
}

// SetFilter switches to filter f, resetting to page 1. A filter equal to the current
// one is a no-op unless the view is still Idle. It reports whether a fetch was issued.
func (v *ViewState) SetFilter(ctx context.Context, f domain.FilterState) bool {
	v.mu.Lock()
	if v.closed || (v.status != domain.ViewIdle && v.filter.Equal(f)) {
		v.mu.Unlock()
		return false
	}
	v.filter = f
	v.page = 1
	v.totalPages = 0
	v.startFetchLocked(ctx, false)
	v.mu.Unlock()

	v.emit()
	return true
}

// SetPage moves to page n. n is clamped to 1 below and, when configured, to the
// last known TotalPages above. The current page is a no-op unless the view is Idle.
func (v *ViewState) SetPage(ctx context.Context, n int) bool {
	v.mu.Lock()
	n = v.clampLocked(n)
	if v.closed || (v.status != domain.ViewIdle && v.page == n) {
		v.mu.Unlock()
		return false
	}
	v.page = n
	v.startFetchLocked(ctx, false)
	v.mu.Unlock()

	v.emit()
	return true
}

// Refresh refetches the current pair regardless of equality.
func (v *ViewState) Refresh(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.startFetchLocked(ctx, true)
	v.mu.Unlock()

	v.emit()
}

// MarkStale flags the committed data as outdated without fetching.
func (v *ViewState) MarkStale() {
	v.mu.Lock()
	if v.closed || v.stale {
		v.mu.Unlock()
		return
	}
	v.stale = true
	v.mu.Unlock()

	v.emit()
}

// Current returns a snapshot. Item counters are read through the shared item
// store so optimistic patches made elsewhere are visible.
func (v *ViewState) Current() ViewSnapshot {
	v.mu.Lock()
	snap := ViewSnapshot{
		Name:   v.cfg.Name,
		Status: v.status,
		Filter: v.filter,
		Page:   v.page,
		Err:    v.err,
		Stale:  v.stale,
		Seq:    v.seq,
	}
	var data *domain.Page
	if v.status == domain.ViewReady && v.data != nil {
		cp := *v.data
		cp.Items = append([]domain.CatalogItem(nil), v.data.Items...)
		data = &cp
	}
	v.mu.Unlock()

	if data != nil && v.items != nil {
		for i, item := range data.Items {
			if live, _, ok := v.items.Get(item.Key()); ok {
				data.Items[i] = live
			}
		}
	}
	snap.Data = data
	return snap
}

// History returns a page previously committed for (filter, page), if retained.
func (v *ViewState) History(f domain.FilterState, page int) (domain.Page, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.history[historyKey(f, page)]
	return p, ok
}

// Subscribe registers fn to receive a snapshot after every state change.
func (v *ViewState) Subscribe(fn ViewListener) func() {
	v.mu.Lock()
	v.nextSub++
	id := v.nextSub
	v.listeners[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

// Wait blocks until every fetch started so far has finished.
func (v *ViewState) Wait() {
	v.wg.Wait()
}

// Close cancels in-flight fetches and releases the items held in the shared store.
func (v *ViewState) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	for seq, f := range v.inflight {
		f.cancel()
		delete(v.inflight, seq)
	}
	held := v.held
	v.held = nil
	v.listeners = make(map[uint64]ViewListener)
	v.mu.Unlock()

	v.releaseKeys(held)
	v.wg.Wait()
}

func (v *ViewState) clampLocked(n int) int {
	if n < 1 {
		n = 1
	}
	if v.cfg.ClampToTotalPages && v.totalPages > 0 && n > v.totalPages {
		n = v.totalPages
	}
	return n
}

// startFetchLocked must be called with v.mu held. With fresh set, an in-flight
// fetch for the same pair is cancelled too instead of being joined.
func (v *ViewState) startFetchLocked(parent context.Context, fresh bool) {
	filter, page := v.filter, v.page
	key := historyKey(filter, page)

	// A cancelled call may still be registering with the group, so a new epoch keeps
	// later requests from joining it.
	for seq, f := range v.inflight {
		if f.key != key || fresh {
			f.cancel()
			delete(v.inflight, seq)
			v.epoch++
		}
	}
	flight := key + "@" + strconv.FormatUint(v.epoch, 10)

	v.seq++
	seq := v.seq
	v.status = domain.ViewLoading
	v.err = nil

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	v.inflight[seq] = inflightFetch{key: key, cancel: cancel}

	v.wg.Add(1)
	go v.run(ctx, cancel, seq, flight, filter, page)
}

func (v *ViewState) run(ctx context.Context, cancel context.CancelFunc, seq uint64, flight string, filter domain.FilterState, page int) {
	defer v.wg.Done()
	defer cancel()

	ctx = logger.WithView(ctx, v.cfg.Name)
	ctx, span := tracing.TraceViewFetch(ctx, v.cfg.Name, page)
	defer span.End()

	start := time.Now()
	res, err, shared := v.group.Do(flight, func() (interface{}, error) {
		return v.fetcher.FetchPage(ctx, filter, page)
	})

	v.mu.Lock()
	delete(v.inflight, seq)
	if v.closed || seq != v.seq {
		v.mu.Unlock()
		v.logger.Debugw("discarding stale page", "seq", seq, "page", page, "shared", shared)
		v.record("discarded", start)
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			v.mu.Unlock()
			v.record("discarded", start)
			return
		}
		v.status = domain.ViewFailed
		v.err = err
		v.mu.Unlock()

		tracing.RecordError(ctx, err)
		v.logger.Warnw("page fetch failed", "page", page, "error", err)
		v.record("failed", start)
		if !apperrors.IsAuthExpired(err) && v.notifier != nil {
			v.notifier.Push(domain.SeverityError, apperrors.UserMessage(err, fetchFailedMessage), "")
		}
		v.emit()
		return
	}

	p := res.(domain.Page)
	p.Index = page
	p.Items = append([]domain.CatalogItem(nil), p.Items...)

	v.status = domain.ViewReady
	v.data = &p
	v.stale = false
	v.totalPages = p.TotalPages
	v.remember(historyKey(filter, page), p)
	released := v.hold(p)
	v.mu.Unlock()

	v.releaseKeys(released)
	v.logger.Debugw("page committed", "page", page, "items", len(p.Items), "total_pages", p.TotalPages)
	v.record("committed", start)
	v.emit()
}

// hold takes references on the new page's items and returns the keys to release.
// Must be called with v.mu held.
func (v *ViewState) hold(p domain.Page) []domain.ItemKey {
	if v.items == nil {
		return nil
	}
	keys := p.Keys()
	for i, key := range keys {
		v.items.Acquire(key)
		v.items.Upsert(key, p.Items[i])
	}
	old := v.held
	v.held = keys
	return old
}

func (v *ViewState) releaseKeys(keys []domain.ItemKey) {
	if v.items == nil {
		return
	}
	for _, key := range keys {
		v.items.Release(key)
	}
}

// remember must be called with v.mu held.
func (v *ViewState) remember(key string, p domain.Page) {
	if _, ok := v.history[key]; !ok {
		v.historyOrder = append(v.historyOrder, key)
	}
	v.history[key] = p
	for len(v.historyOrder) > v.cfg.HistorySize {
		oldest := v.historyOrder[0]
		v.historyOrder = v.historyOrder[1:]
		delete(v.history, oldest)
	}
}

func (v *ViewState) record(outcome string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordViewFetch(v.cfg.Name, outcome, time.Since(start))
	}
}

func (v *ViewState) emit() {
	v.mu.Lock()
	if len(v.listeners) == 0 {
		v.mu.Unlock()
		return
	}
	listeners := make([]ViewListener, 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()

	snap := v.Current()
	for _, fn := range listeners {
		fn(snap)
	}
}

func historyKey(f domain.FilterState, page int) string {
	return f.Key() + "#" + strconv.Itoa(page)
}
