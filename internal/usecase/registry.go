package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/short-links/internal/entity"
)

const DefaultLifespanDays = 365

const maxCreateRetries = 5

type linkRepository interface {
	Create(ctx context.Context, link *entity.Link) (*entity.Link, error)
	GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error)
	GetByLongURL(ctx context.Context, longURL string) (*entity.Link, error)
	Update(ctx context.Context, link *entity.Link) (*entity.Link, error)
	Delete(ctx context.Context, shortKey string) error
	DeleteAll(ctx context.Context) error
	ListAll(ctx context.Context) ([]*entity.Link, error)
}

type keyGenerator interface {
	Reduce(canonicalURL string) (string, error)
	Claim(key, canonicalURL string) bool
	Release(key string)
	Reset()
}

// CreateParams describes a shortening request. An empty ShortKey asks for a
// generated key; a nil LifespanDays selects the registry default.
type CreateParams struct {
	ShortKey     string
	LongURL      string
	LifespanDays *int
}

// CreateResult is the outcome of Registry.Create.
type CreateResult struct {
	ShortURL string
	Link     *entity.Link
	Created  bool // Created is false when an existing link was returned for the same URL.
}

// Registry maps long URLs to short keys on top of a link repository.
type Registry struct {
	repo         linkRepository
	keys         keyGenerator
	validate     *validator.Validate
	domain       string
	lifespanDays int
	now          func() time.Time
	onEvict      func(shortKey string)
}

type RegistryOption func(*Registry)

// WithDomain sets the prefix short URLs are built from.
func WithDomain(domain string) RegistryOption {
	return func(r *Registry) {
		r.domain = domain
	}
}

func WithDefaultLifespan(days int) RegistryOption {
	return func(r *Registry) {
		r.lifespanDays = days
	}
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithEvictHook registers fn to run after an expired link is replaced.
func WithEvictHook(fn func(shortKey string)) RegistryOption {
	return func(r *Registry) {
		r.onEvict = fn
	}
}

func NewRegistry(repo linkRepository, keys keyGenerator, validate *validator.Validate, opts ...RegistryOption) *Registry {
	r := &Registry{
		repo:         repo,
		keys:         keys,
		validate:     validate,
		lifespanDays: DefaultLifespanDays,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.domain = strings.TrimSuffix(r.domain, "/")

	return r
}

// ShortURL returns the fully qualified short URL for shortKey.
func (r *Registry) ShortURL(shortKey string) string {
	return r.domain + "/" + shortKey
}

// Create shortens params.LongURL. With a custom key it fails with
// entity.ErrConflict if the key is bound to a live link. Without one it
// returns the existing link for the same canonical URL, if any, and otherwise
// stores a link under a freshly generated key. Invalid input fails with
// entity.ErrInvalidURL or entity.ErrInvalidLifespan before anything is stored.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	const op = "usecase.Registry.Create"

	if !IsValidURL(r.validate, params.LongURL) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrInvalidURL)
	}

	days := r.lifespanDays
	if params.LifespanDays != nil {
		days = *params.LifespanDays
	}
	if days < 1 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrInvalidLifespan)
	}

	canonical := NormalizeURL(params.LongURL)

	if params.ShortKey != "" {
		return r.createCustom(ctx, params.ShortKey, canonical, params.LongURL, days)
	}

	return r.createGenerated(ctx, canonical, params.LongURL, days)
}

func (r *Registry) createCustom(ctx context.Context, shortKey, canonical, target string, days int) (*CreateResult, error) {
	const op = "usecase.Registry.createCustom"

	existing, err := r.repo.GetByShortKey(ctx, shortKey)
	switch {
	case err == nil:
		if !existing.IsExpired(r.now()) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrConflict)
		}
		if err := r.evict(ctx, existing); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case !errors.Is(err, entity.ErrLinkNotFound):
		return nil, fmt.Errorf("%s: failed to look up short key: %w", op, err)
	}

	link, err := r.repo.Create(ctx, r.newLink(shortKey, canonical, target, days))
	if err != nil {
		if errors.Is(err, entity.ErrShortKeyExists) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrConflict)
		}
		return nil, fmt.Errorf("%s: failed to store link: %w", op, err)
	}

	r.keys.Claim(shortKey, canonical)

	return &CreateResult{ShortURL: r.ShortURL(shortKey), Link: link, Created: true}, nil
}

func (r *Registry) createGenerated(ctx context.Context, canonical, target string, days int) (*CreateResult, error) {
	const op = "usecase.Registry.createGenerated"

	existing, err := r.repo.GetByLongURL(ctx, canonical)
	switch {
	case err == nil:
		if !existing.IsExpired(r.now()) {
			return &CreateResult{ShortURL: r.ShortURL(existing.ShortKey), Link: existing}, nil
		}
		if err := r.evict(ctx, existing); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case !errors.Is(err, entity.ErrLinkNotFound):
		return nil, fmt.Errorf("%s: failed to look up long url: %w", op, err)
	}

	for i := 0; i < maxCreateRetries; i++ {
		shortKey, err := r.keys.Reduce(canonical)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short key: %w", op, err)
		}

		link, err := r.repo.Create(ctx, r.newLink(shortKey, canonical, target, days))
		if err != nil {
			if !errors.Is(err, entity.ErrShortKeyExists) {
				return nil, fmt.Errorf("%s: failed to store link: %w", op, err)
			}

			winner, err := r.takenBy(ctx, shortKey, canonical)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if winner != nil {
				return &CreateResult{ShortURL: r.ShortURL(shortKey), Link: winner}, nil
			}
			continue
		}

		return &CreateResult{ShortURL: r.ShortURL(shortKey), Link: link, Created: true}, nil
	}

	return nil, fmt.Errorf("%s: %w", op, entity.ErrExhaustedKeyspace)
}

// takenBy inspects the record that already holds shortKey. A concurrent
// request for the same canonical URL stored it first: that link is returned
// and the key stays claimed. Otherwise the key is handed to the URL that owns
// it and the next draw picks another one.
func (r *Registry) takenBy(ctx context.Context, shortKey, canonical string) (*entity.Link, error) {
	existing, err := r.repo.GetByShortKey(ctx, shortKey)
	switch {
	case errors.Is(err, entity.ErrLinkNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up short key: %w", err)
	}

	if existing.IsExpired(r.now()) {
		return nil, r.evict(ctx, existing)
	}
	if existing.LongURL == canonical {
		return existing, nil
	}

	r.keys.Release(shortKey)
	r.keys.Claim(shortKey, existing.LongURL)

	return nil, nil
}

// Resolve returns the live link stored under shortKey. Expired links are
// reported as entity.ErrLinkNotFound.
func (r *Registry) Resolve(ctx context.Context, shortKey string) (*entity.Link, error) {
	const op = "usecase.Registry.Resolve"

	link, err := r.repo.GetByShortKey(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short key: %w", op, err)
	}

	if link.IsExpired(r.now()) {
		return nil, fmt.Errorf("%s: link expired at %s: %w", op, link.ExpiresAt.Format(time.RFC3339), entity.ErrLinkNotFound)
	}

	return link, nil
}

// List returns every stored link, expired ones included.
func (r *Registry) List(ctx context.Context) ([]*entity.Link, error) {
	const op = "usecase.Registry.List"

	links, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	return links, nil
}

// Delete removes the link stored under shortKey and frees the key.
func (r *Registry) Delete(ctx context.Context, shortKey string) error {
	const op = "usecase.Registry.Delete"

	if err := r.repo.Delete(ctx, shortKey); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	r.keys.Release(shortKey)

	return nil
}

// Purge removes every link and forgets every key.
func (r *Registry) Purge(ctx context.Context) error {
	const op = "usecase.Registry.Purge"

	if err := r.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%s: failed to delete links: %w", op, err)
	}

	r.keys.Reset()

	return nil
}

// Warm claims the keys of every stored link so that generated keys avoid them.
// It returns the number of keys claimed.
func (r *Registry) Warm(ctx context.Context) (int, error) {
	const op = "usecase.Registry.Warm"

	links, err := r.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	var claimed int
	for _, link := range links {
		if r.keys.Claim(link.ShortKey, link.LongURL) {
			claimed++
		}
	}

	return claimed, nil
}

func (r *Registry) evict(ctx context.Context, link *entity.Link) error {
	if err := r.repo.Delete(ctx, link.ShortKey); err != nil && !errors.Is(err, entity.ErrLinkNotFound) {
		return fmt.Errorf("failed to delete expired link: %w", err)
	}

	r.keys.Release(link.ShortKey)
	if r.onEvict != nil {
		r.onEvict(link.ShortKey)
	}

	return nil
}

func (r *Registry) newLink(shortKey, canonical, target string, days int) *entity.Link {
	now := r.now()

	return &entity.Link{
		ShortKey:  shortKey,
		LongURL:   canonical,
		TargetURL: target,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
	}
}
