package promo

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/veloramarket/push-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	// cooldownWindow is the minimum elapsed time before the same template
	// may be resent to the same user.
	cooldownWindow = 3600 * time.Second
	// historyLimit bounds the per-user rolling history (FIFO eviction).
	historyLimit = 10
)

type historyEntry struct {
	title  string
	sentAt time.Time
}

type userHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

// Selector picks a promotional template for a user, avoiding anything sent
// to that user inside the cool-down window. History lives in process memory
// only; a restart resets anti-repeat state, which is acceptable for a soft
// heuristic.
type Selector struct {
	catalog *Catalog
	logger  *zap.Logger

	mu        sync.Mutex
	histories map[string]*userHistory

	now      func() time.Time
	randIntn func(n int) int
}

func NewSelector(catalog *Catalog, logger *zap.Logger) (*Selector, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Selector{
		catalog:   catalog,
		logger:    logger,
		histories: make(map[string]*userHistory),
		now:       time.Now,
		randIntn:  rand.Intn,
	}, nil
}

// Pick chooses one template for the user and immediately appends it to the
// user's history. The read-decide-append sequence is a single per-user
// critical section so concurrent campaigns cannot double-select.
func (s *Selector) Pick(userID string, preferredCategory string) (domain.PromotionTemplate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PromotionTemplate{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	history := s.historyFor(userID)
	history.mu.Lock()
	defer history.mu.Unlock()

	now := s.now()
	eligible := s.eligibleTemplates(history, now)

	var chosen domain.PromotionTemplate
	switch {
	case len(eligible) == 0:
		// Everything is cooling down; fall back to the whole catalog so the
		// user is never starved of promotions.
		all := s.catalog.Templates()
		chosen = all[s.randIntn(len(all))]
		s.logger.Debug("all promotions cooling down, using full-catalog fallback",
			zap.String("userId", userID),
		)
	default:
		chosen = s.chooseFromEligible(eligible, preferredCategory)
	}

	history.entries = append(history.entries, historyEntry{title: chosen.Title, sentAt: now})
	if len(history.entries) > historyLimit {
		history.entries = history.entries[len(history.entries)-historyLimit:]
	}

	return chosen, nil
}

// HistoryLen reports the current history length for a user.
func (s *Selector) HistoryLen(userID string) int {
	s.mu.Lock()
	history, ok := s.histories[userID]
	s.mu.Unlock()
	if !ok {
		return 0
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	return len(history.entries)
}

func (s *Selector) historyFor(userID string) *userHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.histories[userID]
	if !ok {
		history = &userHistory{}
		s.histories[userID] = history
	}
	return history
}

// eligibleTemplates filters out templates sent within the cool-down window.
// The boundary instant counts as still cooling down to avoid flip-flopping
// under clock jitter.
func (s *Selector) eligibleTemplates(history *userHistory, now time.Time) []domain.PromotionTemplate {
	recent := make(map[string]struct{}, len(history.entries))
	for _, entry := range history.entries {
		if now.Sub(entry.sentAt) <= cooldownWindow {
			recent[entry.title] = struct{}{}
		}
	}

	all := s.catalog.Templates()
	eligible := make([]domain.PromotionTemplate, 0, len(all))
	for _, tpl := range all {
		if _, sent := recent[tpl.Title]; sent {
			continue
		}
		eligible = append(eligible, tpl)
	}
	return eligible
}

func (s *Selector) chooseFromEligible(eligible []domain.PromotionTemplate, preferredCategory string) domain.PromotionTemplate {
	preferredCategory = strings.TrimSpace(preferredCategory)
	if preferredCategory != "" {
		for _, tpl := range eligible {
			if tpl.Category == preferredCategory || tpl.Category == domain.CategoryAll {
				return tpl
			}
		}
	}
	return eligible[s.randIntn(len(eligible))]
}
