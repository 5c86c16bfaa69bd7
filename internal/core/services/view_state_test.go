package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalogsync/internal/core/domain"
	apperrors "catalogsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fetchCall struct {
	filter domain.FilterState
	page   int
}

// scriptedFetcher serves pages of three items. A gate registered for a page holds
// that fetch until the gate is closed.
type scriptedFetcher struct {
	mu           sync.Mutex
	calls        []fetchCall
	gates        map[int]chan struct{}
	err          error
	totalPages   int
	ignoreCancel bool
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{gates: make(map[int]chan struct{}), totalPages: 5}
}

func (f *scriptedFetcher) gate(page int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[page] = ch
	return ch
}

func (f *scriptedFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, filter domain.FilterState, page int) (domain.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{filter: filter, page: page})
	gate := f.gates[page]
	err := f.err
	total := f.totalPages
	f.mu.Unlock()

	if gate != nil {
		if f.ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return domain.Page{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return domain.Page{}, err
	}
	return testPage(page, total), nil
}

func testPage(page, total int) domain.Page {
	items := make([]domain.CatalogItem, 3)
	for i := range items {
		items[i] = domain.CatalogItem{
			ID:       fmt.Sprintf("%d-%d", page, i),
			Origin:   domain.OriginLocal,
			Kind:     domain.KindMovie,
			Title:    fmt.Sprintf("Title %d/%d", page, i),
			Counters: domain.Counters{Likes: 10, Dislikes: 2},
		}
	}
	return domain.Page{Index: page, Items: items, TotalPages: total, TotalElements: int64(total * 3)}
}

func newTestView(t *testing.T, cfg ViewConfig, f *scriptedFetcher) (*ViewState, *ItemStore, *recordingNotifier) {
	items := NewItemStore()
	notifier := &recordingNotifier{}
	v := NewViewState(cfg, f, items, notifier, nil, zaptest.NewLogger(t).Sugar())
	t.Cleanup(v.Close)
	return v, items, notifier
}

func TestViewState_InitialFetch(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{Name: "movies"}, f)

	assert.Equal(t, domain.ViewIdle, v.Current().Status)
	assert.True(t, v.SetFilter(context.Background(), domain.FilterState{}))
	v.Wait()

	snap := v.Current()
	assert.Equal(t, domain.ViewReady, snap.Status)
	require.NotNil(t, snap.Data)
	assert.Equal(t, 1, snap.Data.Index)
	assert.Len(t, snap.Data.Items, 3)
	assert.Equal(t, 1, f.callCount())
}

func TestViewState_LastRequestWins(t *testing.T) {
	f := newScriptedFetcher()
	f.ignoreCancel = true
	v, _, _ := newTestView(t, ViewConfig{Name: "movies"}, f)
	ctx := context.Background()

	v.SetPage(ctx, 1)
	v.Wait()

	slow := f.gate(2)
	v.SetPage(ctx, 2)
	v.SetPage(ctx, 3)

	require.Eventually(t, func() bool {
		s := v.Current()
		return s.Status == domain.ViewReady && s.Data != nil && s.Data.Index == 3
	}, time.Second, 5*time.Millisecond)

	// The response for page 2 arrives after page 3 committed and must be dropped.
	close(slow)
	v.Wait()

	snap := v.Current()
	assert.Equal(t, 3, snap.Page)
	require.NotNil(t, snap.Data)
	assert.Equal(t, 3, snap.Data.Index)
	assert.Equal(t, "3-0", snap.Data.Items[0].ID)
}

func TestViewState_SupersededFetchIsCancelled(t *testing.T) {
	f := newScriptedFetcher()
	v, _, notifier := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	gate := f.gate(1)
	v.SetPage(ctx, 1)
	v.SetFilter(ctx, domain.FilterState{Query: "matrix"})
	close(gate)
	v.Wait()

	snap := v.Current()
	assert.Equal(t, domain.ViewReady, snap.Status)
	assert.Equal(t, "matrix", snap.Filter.Query)
	assert.Empty(t, notifier.all())
}

func TestViewState_RevisitAfterCancelCommits(t *testing.T) {
	ctx := context.Background()
	dune := domain.FilterState{Query: "dune"}
	alien := domain.FilterState{Query: "alien"}

	for i := 0; i < 50; i++ {
		f := newScriptedFetcher()
		v, _, _ := newTestView(t, ViewConfig{}, f)

		gate := f.gate(1)
		v.SetFilter(ctx, dune)
		v.SetFilter(ctx, alien)
		v.SetFilter(ctx, dune)
		close(gate)
		v.Wait()

		snap := v.Current()
		if snap.Status != domain.ViewReady {
			t.Fatalf("Expected ready view on run %d, got: %v", i, snap.Status)
		}
		assert.Equal(t, "dune", snap.Filter.Query)
		assert.Equal(t, 3, f.callCount())
	}
}

func TestViewState_RefreshDoesNotJoinOlderFetch(t *testing.T) {
	f := newScriptedFetcher()
	f.ignoreCancel = true
	v, _, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	gate := f.gate(1)
	v.SetPage(ctx, 1)
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)

	v.MarkStale()
	v.Refresh(ctx)
	close(gate)
	v.Wait()

	snap := v.Current()
	assert.Equal(t, 2, f.callCount())
	assert.Equal(t, domain.ViewReady, snap.Status)
	assert.False(t, snap.Stale)
}

func TestViewState_EqualFilterIsNoop(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()
	adult := false
	filter := domain.FilterState{Query: "dune", Adult: &adult}

	require.True(t, v.SetFilter(ctx, filter))
	v.Wait()

	same := false
	assert.False(t, v.SetFilter(ctx, domain.FilterState{Query: "dune", Adult: &same}))
	assert.False(t, v.SetPage(ctx, 1))
	v.Wait()
	assert.Equal(t, 1, f.callCount())
}

func TestViewState_FilterChangeResetsPage(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	v.SetPage(ctx, 4)
	v.Wait()
	assert.Equal(t, 4, v.Current().Page)

	v.SetFilter(ctx, domain.FilterState{Genre: "drama"})
	v.Wait()

	snap := v.Current()
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, 1, f.calls[len(f.calls)-1].page)
	assert.Equal(t, "drama", f.calls[len(f.calls)-1].filter.Genre)
}

func TestViewState_PageClamping(t *testing.T) {
	f := newScriptedFetcher()
	f.totalPages = 2
	v, _, _ := newTestView(t, ViewConfig{ClampToTotalPages: true}, f)
	ctx := context.Background()

	v.SetPage(ctx, -3)
	v.Wait()
	assert.Equal(t, 1, v.Current().Page)

	v.SetPage(ctx, 9)
	v.Wait()
	assert.Equal(t, 2, v.Current().Page)
}

func TestViewState_FailureNotifies(t *testing.T) {
	f := newScriptedFetcher()
	f.setErr(apperrors.FromStatus(500, ""))
	v, _, notifier := newTestView(t, ViewConfig{}, f)

	v.SetPage(context.Background(), 1)
	v.Wait()

	snap := v.Current()
	assert.Equal(t, domain.ViewFailed, snap.Status)
	assert.Nil(t, snap.Data)
	assert.Error(t, snap.Err)

	errs := notifier.bySeverity(domain.SeverityError)
	require.Len(t, errs, 1)
	assert.Equal(t, apperrors.GenericMessage, errs[0].Message)
}

func TestViewState_ForeignErrorUsesFallbackMessage(t *testing.T) {
	f := newScriptedFetcher()
	f.setErr(errors.New("dial tcp: connection refused"))
	v, _, notifier := newTestView(t, ViewConfig{}, f)

	v.SetPage(context.Background(), 1)
	v.Wait()

	errs := notifier.bySeverity(domain.SeverityError)
	require.Len(t, errs, 1)
	assert.Equal(t, fetchFailedMessage, errs[0].Message)
}

func TestViewState_AuthExpiredIsNotToasted(t *testing.T) {
	f := newScriptedFetcher()
	f.setErr(apperrors.NewAuthExpiredError())
	v, _, notifier := newTestView(t, ViewConfig{}, f)

	v.SetPage(context.Background(), 1)
	v.Wait()

	assert.Equal(t, domain.ViewFailed, v.Current().Status)
	assert.Empty(t, notifier.all())
}

func TestViewState_RetryAfterFailure(t *testing.T) {
	f := newScriptedFetcher()
	f.setErr(apperrors.FromStatus(503, "maintenance"))
	v, _, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	v.SetPage(ctx, 1)
	v.Wait()
	require.Equal(t, domain.ViewFailed, v.Current().Status)

	f.setErr(nil)
	v.Refresh(ctx)
	v.Wait()
	assert.Equal(t, domain.ViewReady, v.Current().Status)
}

func TestViewState_CurrentReadsSharedItemStore(t *testing.T) {
	f := newScriptedFetcher()
	v, items, _ := newTestView(t, ViewConfig{}, f)

	v.SetPage(context.Background(), 1)
	v.Wait()

	key := domain.ItemKey{Origin: domain.OriginLocal, ID: "1-0"}
	items.Update(key, func(it domain.CatalogItem) domain.CatalogItem {
		it.Counters.Likes = 99
		return it
	})

	snap := v.Current()
	require.NotNil(t, snap.Data)
	assert.Equal(t, int64(99), snap.Data.Items[0].Counters.Likes)
}

func TestViewState_ReleasesPreviousPageItems(t *testing.T) {
	f := newScriptedFetcher()
	v, items, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	v.SetPage(ctx, 1)
	v.Wait()
	first := domain.ItemKey{Origin: domain.OriginLocal, ID: "1-0"}
	assert.Equal(t, 1, items.Refs(first))

	v.SetPage(ctx, 2)
	v.Wait()
	assert.Zero(t, items.Refs(first))
	assert.Equal(t, 1, items.Refs(domain.ItemKey{Origin: domain.OriginLocal, ID: "2-0"}))
	assert.Equal(t, 3, items.Len())

	v.Close()
	assert.Zero(t, items.Len())
}

func TestViewState_MarkStaleAndRefresh(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{}, f)
	ctx := context.Background()

	v.SetPage(ctx, 1)
	v.Wait()

	var (
		mu    sync.Mutex
		snaps []ViewSnapshot
	)
	v.Subscribe(func(s ViewSnapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	v.MarkStale()
	v.MarkStale()
	assert.True(t, v.Current().Stale)

	v.Refresh(ctx)
	v.Wait()
	assert.False(t, v.Current().Stale)
	assert.Equal(t, 2, f.callCount())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	assert.True(t, snaps[0].Stale)
	assert.Equal(t, domain.ViewReady, snaps[len(snaps)-1].Status)
}

func TestViewState_History(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{HistorySize: 2}, f)
	ctx := context.Background()

	for page := 1; page <= 3; page++ {
		v.SetPage(ctx, page)
		v.Wait()
	}

	_, ok := v.History(domain.FilterState{}, 1)
	assert.False(t, ok)
	p, ok := v.History(domain.FilterState{}, 3)
	require.True(t, ok)
	assert.Equal(t, 3, p.Index)
}

func TestViewState_ClosedViewIgnoresChanges(t *testing.T) {
	f := newScriptedFetcher()
	v, _, _ := newTestView(t, ViewConfig{}, f)
	v.Close()

	assert.False(t, v.SetPage(context.Background(), 2))
	assert.False(t, v.SetFilter(context.Background(), domain.FilterState{Query: "x"}))
	assert.Zero(t, f.callCount())
}

func TestViewState_FailedPageKeepsHistory(t *testing.T) {
	f := newScriptedFetcher()
	v, _, notifier := newTestView(t, ViewConfig{Name: "movies"}, f)
	ctx := context.Background()
	horror := domain.FilterState{Genre: "horror"}

	v.SetFilter(ctx, horror)
	v.Wait()
	require.Equal(t, domain.ViewReady, v.Current().Status)

	f.setErr(apperrors.FromStatus(500, ""))
	v.SetPage(ctx, 2)
	v.Wait()

	snap := v.Current()
	assert.Equal(t, domain.ViewFailed, snap.Status)
	assert.Equal(t, 2, snap.Page)
	assert.Nil(t, snap.Data)
	assert.Len(t, notifier.bySeverity(domain.SeverityError), 1)

	p, ok := v.History(horror, 1)
	require.True(t, ok)
	assert.Equal(t, "1-0", p.Items[0].ID)
}
