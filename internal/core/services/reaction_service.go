package services

import (
	"context"
	"sync"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"

	"go.uber.org/zap"
)

const reactionFailedMessage = "Could not save your reaction"

// reactionEntry tracks the local reaction on one item. confirmed is the last kind
// the backend accepted; a failed latest call rolls back to it.
type reactionEntry struct {
	kind         domain.ReactionKind
	seq          uint64
	confirmed    domain.ReactionKind
	confirmedSeq uint64
	rolledBack   bool
}

// ReactionService applies like/dislike changes to the shared item store at once
// and confirms them with the backend in the background.
type ReactionService struct {
	mu     sync.Mutex
	states map[domain.ItemKey]*reactionEntry
	seq    uint64
	wg     sync.WaitGroup

	api      ports.ReactionAPI
	items    *ItemStore
	notifier ports.Notifier
	rollback bool
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
}

// NewReactionService creates the coordinator. With rollback set, a failed reaction is
// reverted unless a later reaction on the same item replaced it.
func NewReactionService(
	api ports.ReactionAPI,
	items *ItemStore,
	notifier ports.Notifier,
	rollback bool,
	metrics ports.MetricsCollector,
	log *zap.SugaredLogger,
) *ReactionService {
	if log == nil {
		log = logger.Nop()
	}
	return &ReactionService{
		states:   make(map[domain.ItemKey]*reactionEntry),
		api:      api,
		items:    items,
		notifier: notifier,
		rollback: rollback,
		metrics:  metrics,
		logger:   log,
	}
}

// React toggles the user's reaction on key and returns the new local state.
// The backend call runs asynchronously; use Wait to observe its outcome.
func (s *ReactionService) React(ctx context.Context, key domain.ItemKey, requested domain.ReactionKind) domain.ReactionKind {
	s.mu.Lock()
	prev := s.stateLocked(key)
	next := domain.Transition(prev, requested)
	delta := domain.CounterDelta(prev, next)

	s.seq++
	seq := s.seq
	entry, ok := s.states[key]
	if !ok {
		entry = &reactionEntry{confirmed: prev}
		s.states[key] = entry
	}
	entry.kind = next
	entry.seq = seq
	entry.rolledBack = false
	s.patchLocked(key, delta, next)
	s.mu.Unlock()

	s.logger.Debugw("reaction applied", "item", key.String(), "from", prev, "to", next)

	s.wg.Add(1)
	go s.send(context.WithoutCancel(ctx), key, next, seq)
	return next
}

// State returns the local reaction for key, NONE when never touched.
func (s *ReactionService) State(key domain.ItemKey) domain.ReactionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(key)
}

// Wait blocks until every backend call started so far has completed.
func (s *ReactionService) Wait() {
	s.wg.Wait()
}

func (s *ReactionService) send(ctx context.Context, key domain.ItemKey, next domain.ReactionKind, seq uint64) {
	defer s.wg.Done()

	counters, err := s.api.SendReaction(ctx, key, next)

	s.mu.Lock()
	entry := s.states[key]
	superseded := entry.seq != seq
	newest := seq > entry.confirmedSeq
	if err == nil && newest {
		entry.confirmed = next
		entry.confirmedSeq = seq
	}

	outcome := "confirmed"
	switch {
	case err == nil && superseded && newest && entry.rolledBack:
		// The latest call failed and was reverted, but this older one landed, so the
		// backend now holds next.
		outcome = "reconciled"
		s.patchLocked(key, domain.CounterDelta(entry.kind, next), next)
		entry.kind = next
		s.applyCountersLocked(key, counters)
	case err == nil && superseded:
		outcome = "superseded"
	case err == nil:
		s.applyCountersLocked(key, counters)
	case superseded:
		outcome = "superseded"
	case s.rollback:
		outcome = "rolled_back"
		target := entry.confirmed
		s.patchLocked(key, domain.CounterDelta(entry.kind, target), target)
		entry.kind = target
		entry.rolledBack = true
	default:
		outcome = "kept"
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReaction(outcome)
	}
	if err == nil {
		return
	}

	s.logger.Warnw("reaction failed", "item", key.String(), "reaction", next, "outcome", outcome, "error", err)
	if !apperrors.IsAuthExpired(err) && s.notifier != nil {
		s.notifier.Push(domain.SeverityError, apperrors.UserMessage(err, reactionFailedMessage), "")
	}
}

// stateLocked seeds unknown keys from the reaction the backend reported for the item.
func (s *ReactionService) stateLocked(key domain.ItemKey) domain.ReactionKind {
	if e, ok := s.states[key]; ok {
		return e.kind
	}
	if s.items != nil {
		if item, _, ok := s.items.Get(key); ok && item.Reaction != "" {
			return item.Reaction
		}
	}
	return domain.ReactionNone
}

func (s *ReactionService) applyCountersLocked(key domain.ItemKey, counters *domain.Counters) {
	if counters == nil || s.items == nil {
		return
	}
	s.items.Update(key, func(item domain.CatalogItem) domain.CatalogItem {
		item.Counters.Likes = counters.Likes
		item.Counters.Dislikes = counters.Dislikes
		return item
	})
}

func (s *ReactionService) patchLocked(key domain.ItemKey, delta domain.Delta, state domain.ReactionKind) {
	if s.items == nil {
		return
	}
	s.items.Update(key, func(item domain.CatalogItem) domain.CatalogItem {
		item.Counters = item.Counters.Apply(delta)
		item.Reaction = state
		return item
	})
}
