package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"catalogsync/internal/core/domain"
	apperrors "catalogsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type reactionCall struct {
	key  domain.ItemKey
	kind domain.ReactionKind
}

// scriptedReactionAPI answers by requested kind. A reply with a gate blocks until
// the gate is closed.
type scriptedReactionAPI struct {
	mu      sync.Mutex
	calls   []reactionCall
	replies map[domain.ReactionKind]reactionReply
}

type reactionReply struct {
	counters *domain.Counters
	err      error
	gate     chan struct{}
}

func (a *scriptedReactionAPI) SendReaction(_ context.Context, key domain.ItemKey, kind domain.ReactionKind) (*domain.Counters, error) {
	a.mu.Lock()
	a.calls = append(a.calls, reactionCall{key: key, kind: kind})
	reply := a.replies[kind]
	a.mu.Unlock()

	if reply.gate != nil {
		<-reply.gate
	}
	return reply.counters, reply.err
}

var reactedKey = domain.ItemKey{Origin: domain.OriginLocal, ID: "550"}

func newTestReactions(t *testing.T, api *scriptedReactionAPI, rollback bool, seed domain.CatalogItem) (*ReactionService, *ItemStore, *recordingNotifier) {
	items := NewItemStore()
	items.Acquire(seed.Key())
	items.Upsert(seed.Key(), seed)
	notifier := &recordingNotifier{}
	return NewReactionService(api, items, notifier, rollback, nil, zaptest.NewLogger(t).Sugar()), items, notifier
}

func seedItem(likes, dislikes int64) domain.CatalogItem {
	return domain.CatalogItem{
		ID:       reactedKey.ID,
		Origin:   reactedKey.Origin,
		Title:    "Fight Club",
		Counters: domain.Counters{Likes: likes, Dislikes: dislikes},
	}
}

func counters(t *testing.T, items *ItemStore) domain.Counters {
	t.Helper()
	item, _, ok := items.Get(reactedKey)
	require.True(t, ok)
	return item.Counters
}

func TestReactionService_Transitions(t *testing.T) {
	tests := []struct {
		name         string
		steps        []domain.ReactionKind
		wantState    domain.ReactionKind
		wantLikes    int64
		wantDislikes int64
	}{
		{"like", []domain.ReactionKind{domain.ReactionLike}, domain.ReactionLike, 11, 2},
		{"like twice clears", []domain.ReactionKind{domain.ReactionLike, domain.ReactionLike}, domain.ReactionNone, 10, 2},
		{"like then dislike", []domain.ReactionKind{domain.ReactionLike, domain.ReactionDislike}, domain.ReactionDislike, 10, 3},
		{"dislike then like", []domain.ReactionKind{domain.ReactionDislike, domain.ReactionLike}, domain.ReactionLike, 11, 2},
		{"dislike twice clears", []domain.ReactionKind{domain.ReactionDislike, domain.ReactionDislike}, domain.ReactionNone, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, items, notifier := newTestReactions(t, &scriptedReactionAPI{}, true, seedItem(10, 2))

			var state domain.ReactionKind
			for _, step := range tt.steps {
				state = svc.React(context.Background(), reactedKey, step)
			}
			svc.Wait()

			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantState, svc.State(reactedKey))
			c := counters(t, items)
			assert.Equal(t, tt.wantLikes, c.Likes)
			assert.Equal(t, tt.wantDislikes, c.Dislikes)
			assert.Empty(t, notifier.all())
		})
	}
}

func TestReactionService_AppliesBeforeBackendAnswers(t *testing.T) {
	gate := make(chan struct{})
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {gate: gate},
	}}
	svc, items, _ := newTestReactions(t, api, true, seedItem(10, 2))

	svc.React(context.Background(), reactedKey, domain.ReactionLike)
	assert.Equal(t, int64(11), counters(t, items).Likes)

	close(gate)
	svc.Wait()
	assert.Equal(t, int64(11), counters(t, items).Likes)
}

func TestReactionService_RollbackOnFailure(t *testing.T) {
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {err: apperrors.FromStatus(500, "")},
	}}
	svc, items, notifier := newTestReactions(t, api, true, seedItem(10, 2))

	svc.React(context.Background(), reactedKey, domain.ReactionLike)
	svc.Wait()

	assert.Equal(t, domain.ReactionNone, svc.State(reactedKey))
	assert.Equal(t, int64(10), counters(t, items).Likes)

	errs := notifier.bySeverity(domain.SeverityError)
	require.Len(t, errs, 1)
	assert.Equal(t, apperrors.GenericMessage, errs[0].Message)
}

func TestReactionService_KeepOnFailureWithoutRollback(t *testing.T) {
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionDislike: {err: apperrors.FromStatus(500, "")},
	}}
	svc, items, notifier := newTestReactions(t, api, false, seedItem(10, 2))

	svc.React(context.Background(), reactedKey, domain.ReactionDislike)
	svc.Wait()

	assert.Equal(t, domain.ReactionDislike, svc.State(reactedKey))
	assert.Equal(t, int64(3), counters(t, items).Dislikes)
	assert.Len(t, notifier.bySeverity(domain.SeverityError), 1)
}

func TestReactionService_SupersededFailureIsNotRolledBack(t *testing.T) {
	gate := make(chan struct{})
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {err: apperrors.FromStatus(500, ""), gate: gate},
	}}
	svc, items, _ := newTestReactions(t, api, true, seedItem(10, 2))
	ctx := context.Background()

	svc.React(ctx, reactedKey, domain.ReactionLike)
	svc.React(ctx, reactedKey, domain.ReactionDislike)

	// The failed LIKE answers after the DISLIKE replaced it.
	close(gate)
	svc.Wait()

	assert.Equal(t, domain.ReactionDislike, svc.State(reactedKey))
	c := counters(t, items)
	assert.Equal(t, int64(10), c.Likes)
	assert.Equal(t, int64(3), c.Dislikes)
}

func TestReactionService_ReconcilesServerCounters(t *testing.T) {
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {counters: &domain.Counters{Likes: 40, Dislikes: 1, Views: 999}},
	}}
	svc, items, _ := newTestReactions(t, api, true, seedItem(10, 2))

	svc.React(context.Background(), reactedKey, domain.ReactionLike)
	svc.Wait()

	c := counters(t, items)
	assert.Equal(t, int64(40), c.Likes)
	assert.Equal(t, int64(1), c.Dislikes)
	assert.Zero(t, c.Views)
}

func TestReactionService_AuthExpiredIsNotToasted(t *testing.T) {
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {err: apperrors.NewAuthExpiredError()},
	}}
	svc, _, notifier := newTestReactions(t, api, true, seedItem(10, 2))

	svc.React(context.Background(), reactedKey, domain.ReactionLike)
	svc.Wait()

	assert.Equal(t, domain.ReactionNone, svc.State(reactedKey))
	assert.Empty(t, notifier.all())
}

func TestReactionService_SeedsFromItemReaction(t *testing.T) {
	seed := seedItem(10, 2)
	seed.Reaction = domain.ReactionLike
	svc, items, _ := newTestReactions(t, &scriptedReactionAPI{}, true, seed)

	assert.Equal(t, domain.ReactionLike, svc.State(reactedKey))

	// Liking an already liked title clears the like.
	state := svc.React(context.Background(), reactedKey, domain.ReactionLike)
	svc.Wait()

	assert.Equal(t, domain.ReactionNone, state)
	assert.Equal(t, int64(9), counters(t, items).Likes)
}

func TestReactionService_CountersNeverNegative(t *testing.T) {
	seed := seedItem(0, 0)
	seed.Reaction = domain.ReactionDislike
	svc, items, _ := newTestReactions(t, &scriptedReactionAPI{}, true, seed)

	svc.React(context.Background(), reactedKey, domain.ReactionLike)
	svc.Wait()

	c := counters(t, items)
	assert.Equal(t, int64(1), c.Likes)
	assert.Zero(t, c.Dislikes)
}

func TestReactionService_DoubleFailureRestoresConfirmedState(t *testing.T) {
	gate := make(chan struct{})
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {err: apperrors.FromStatus(500, ""), gate: gate},
		domain.ReactionNone: {err: apperrors.FromStatus(500, "")},
	}}
	svc, items, notifier := newTestReactions(t, api, true, seedItem(10, 2))
	ctx := context.Background()

	svc.React(ctx, reactedKey, domain.ReactionLike)
	svc.React(ctx, reactedKey, domain.ReactionLike)

	// The un-like fails first while the like is still in flight.
	require.Eventually(t, func() bool {
		return len(notifier.bySeverity(domain.SeverityError)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ReactionNone, svc.State(reactedKey))
	assert.Equal(t, int64(10), counters(t, items).Likes)

	close(gate)
	svc.Wait()

	assert.Equal(t, domain.ReactionNone, svc.State(reactedKey))
	c := counters(t, items)
	assert.Equal(t, int64(10), c.Likes)
	assert.Equal(t, int64(2), c.Dislikes)
	assert.Len(t, notifier.bySeverity(domain.SeverityError), 2)
}

func TestReactionService_LateSuccessAfterRollbackIsAdopted(t *testing.T) {
	gate := make(chan struct{})
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionLike: {gate: gate},
		domain.ReactionNone: {err: apperrors.FromStatus(500, "")},
	}}
	svc, items, notifier := newTestReactions(t, api, true, seedItem(10, 2))
	ctx := context.Background()

	svc.React(ctx, reactedKey, domain.ReactionLike)
	svc.React(ctx, reactedKey, domain.ReactionLike)

	require.Eventually(t, func() bool {
		return len(notifier.bySeverity(domain.SeverityError)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ReactionNone, svc.State(reactedKey))

	// The backend accepted the like after all.
	close(gate)
	svc.Wait()

	assert.Equal(t, domain.ReactionLike, svc.State(reactedKey))
	assert.Equal(t, int64(11), counters(t, items).Likes)
}

func TestReactionService_RollbackTargetsLastConfirmed(t *testing.T) {
	api := &scriptedReactionAPI{replies: map[domain.ReactionKind]reactionReply{
		domain.ReactionDislike: {err: apperrors.FromStatus(500, "")},
	}}
	svc, items, _ := newTestReactions(t, api, true, seedItem(10, 2))
	ctx := context.Background()

	svc.React(ctx, reactedKey, domain.ReactionLike)
	svc.Wait()

	svc.React(ctx, reactedKey, domain.ReactionDislike)
	svc.Wait()

	assert.Equal(t, domain.ReactionLike, svc.State(reactedKey))
	c := counters(t, items)
	assert.Equal(t, int64(11), c.Likes)
	assert.Equal(t, int64(2), c.Dislikes)
}
