package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// Trigger starts an orchestration run.
type Trigger interface {
	Schedule(ctx context.Context) error
}

// Service is the submission entrypoint.
type Service struct {
	store   types.Store
	trigger Trigger
}

func NewService(store types.Store, trigger Trigger) *Service {
	return &Service{store: store, trigger: trigger}
}

// Submission is the result of queueing one URL.
type Submission struct {
	ID      int64
	URL     string
	Created bool
}

// Submit queues rawURL and triggers a run. A duplicate URL is not stored
// again but still triggers, since the existing item may be eligible.
func (s *Service) Submit(ctx context.Context, rawURL string) (Submission, error) {
	sub, err := s.Enqueue(ctx, rawURL)
	if err != nil {
		return sub, err
	}
	return sub, s.trigger.Schedule(ctx)
}

// SubmitMany queues every URL and triggers one run if any insert succeeded.
// Empty entries are skipped.
func (s *Service) SubmitMany(ctx context.Context, rawURLs []string) ([]Submission, error) {
	var subs []Submission
	for _, rawURL := range rawURLs {
		if strings.TrimSpace(rawURL) == "" {
			continue
		}
		sub, err := s.Enqueue(ctx, rawURL)
		if err != nil {
			return subs, err
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		return nil, types.ErrEmptyURL
	}
	return subs, s.trigger.Schedule(ctx)
}

// Run triggers a run over whatever is already queued.
func (s *Service) Run(ctx context.Context) error {
	return s.trigger.Schedule(ctx)
}

// Enqueue stores rawURL without triggering a run.
func (s *Service) Enqueue(ctx context.Context, rawURL string) (Submission, error) {
	log := utils.GetLogger("queue")
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return Submission{}, types.ErrEmptyURL
	}
	id, created, err := s.store.Insert(ctx, url)
	if err != nil {
		return Submission{URL: url}, fmt.Errorf("%w: inserting %q: %w", types.ErrStore, url, err)
	}
	if created {
		log.Info().Str("op", "queue/submit").Int64("id", id).Str("url", url).Msg("queued")
	} else {
		log.Debug().Str("op", "queue/submit").Int64("id", id).Str("url", url).Msg("already queued")
	}
	return Submission{ID: id, URL: url, Created: created}, nil
}

func (s *Service) List(ctx context.Context, eligibleOnly bool) ([]types.WorkItem, error) {
	var (
		items []types.WorkItem
		err   error
	)
	if eligibleOnly {
		items, err = s.store.ListEligible(ctx)
	} else {
		items, err = s.store.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing items: %w", types.ErrStore, err)
	}
	return items, nil
}
