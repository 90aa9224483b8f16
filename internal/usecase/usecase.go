package usecase

import (
	"context"
	"fmt"

	"github.com/vadimbarashkov/short-links/internal/clicks"
	"github.com/vadimbarashkov/short-links/internal/entity"
)

type clickAggregator interface {
	RecordClick(shortKey string)
	CurrentCount(shortKey string) int64
	Discard(shortKey string)
	Reset()
	Flush(ctx context.Context) (clicks.FlushResult, error)
}

// LinkStats is the click total of a link: persisted plus not yet flushed.
type LinkStats struct {
	Link    *entity.Link
	Pending int64
	Total   int64
}

// LinkUseCase is the entry point of the HTTP layer.
type LinkUseCase struct {
	registry *Registry
	clicks   clickAggregator
}

func New(registry *Registry, clicks clickAggregator) *LinkUseCase {
	return &LinkUseCase{
		registry: registry,
		clicks:   clicks,
	}
}

// ShortURL returns the fully qualified short URL for shortKey.
func (uc *LinkUseCase) ShortURL(shortKey string) string {
	return uc.registry.ShortURL(shortKey)
}

func (uc *LinkUseCase) ShortenURL(ctx context.Context, params CreateParams) (*CreateResult, error) {
	const op = "usecase.LinkUseCase.ShortenURL"

	res, err := uc.registry.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
	}

	return res, nil
}

// ResolveShortKey returns the link to redirect to and counts the visit.
func (uc *LinkUseCase) ResolveShortKey(ctx context.Context, shortKey string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.ResolveShortKey"

	link, err := uc.registry.Resolve(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uc.clicks.RecordClick(link.ShortKey)

	return link, nil
}

// GetLink returns the link without counting a visit.
func (uc *LinkUseCase) GetLink(ctx context.Context, shortKey string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.GetLink"

	link, err := uc.registry.Resolve(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

func (uc *LinkUseCase) GetLinkStats(ctx context.Context, shortKey string) (*LinkStats, error) {
	const op = "usecase.LinkUseCase.GetLinkStats"

	link, err := uc.registry.Resolve(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pending := uc.clicks.CurrentCount(shortKey)

	return &LinkStats{
		Link:    link,
		Pending: pending,
		Total:   link.Clicks + pending,
	}, nil
}

func (uc *LinkUseCase) ListLinks(ctx context.Context) ([]*entity.Link, error) {
	const op = "usecase.LinkUseCase.ListLinks"

	links, err := uc.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return links, nil
}

func (uc *LinkUseCase) DeleteLink(ctx context.Context, shortKey string) error {
	const op = "usecase.LinkUseCase.DeleteLink"

	if err := uc.registry.Delete(ctx, shortKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	uc.clicks.Discard(shortKey)

	return nil
}

func (uc *LinkUseCase) PurgeLinks(ctx context.Context) error {
	const op = "usecase.LinkUseCase.PurgeLinks"

	if err := uc.registry.Purge(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	uc.clicks.Reset()

	return nil
}

// SeedURL is the base of the long URLs created by SeedLinks.
const SeedURL = "https://example.com/seed"

// SeedLinks shortens count sample URLs built from SeedURL. Seeding again with
// an overlapping count returns the links created before.
func (uc *LinkUseCase) SeedLinks(ctx context.Context, count int) ([]*CreateResult, error) {
	const op = "usecase.LinkUseCase.SeedLinks"

	res := make([]*CreateResult, 0, count)
	for i := 1; i <= count; i++ {
		created, err := uc.registry.Create(ctx, CreateParams{LongURL: fmt.Sprintf("%s/%d", SeedURL, i)})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, created)
	}

	return res, nil
}

func (uc *LinkUseCase) FlushClicks(ctx context.Context) (clicks.FlushResult, error) {
	const op = "usecase.LinkUseCase.FlushClicks"

	res, err := uc.clicks.Flush(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}
