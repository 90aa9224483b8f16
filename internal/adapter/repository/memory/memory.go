// Package memory provides a process-local link repository used in development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vadimbarashkov/short-links/internal/entity"
)

type LinkRepository struct {
	mu        sync.RWMutex
	byKey     map[string]*entity.Link
	byLongURL map[string][]string // long URL -> short keys in creation order
}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{
		byKey:     make(map[string]*entity.Link),
		byLongURL: make(map[string][]string),
	}
}

func (r *LinkRepository) Create(_ context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.Create"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[link.ShortKey]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortKeyExists)
	}

	stored := *link
	r.byKey[link.ShortKey] = &stored
	r.byLongURL[link.LongURL] = append(r.byLongURL[link.LongURL], link.ShortKey)

	res := stored
	return &res, nil
}

func (r *LinkRepository) GetByShortKey(_ context.Context, shortKey string) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.GetByShortKey"

	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.byKey[shortKey]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	res := *link
	return &res, nil
}

func (r *LinkRepository) GetByLongURL(_ context.Context, longURL string) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.GetByLongURL"

	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byLongURL[longURL]
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	res := *r.byKey[keys[0]]
	return &res, nil
}

// Update replaces the stored link with the same short key. The long URL of a
// link is part of its index and is kept as stored.
func (r *LinkRepository) Update(_ context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.Update"

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byKey[link.ShortKey]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	stored.TargetURL = link.TargetURL
	stored.ExpiresAt = link.ExpiresAt
	stored.Clicks = link.Clicks

	res := *stored
	return &res, nil
}

func (r *LinkRepository) Delete(_ context.Context, shortKey string) error {
	const op = "adapter.repository.memory.LinkRepository.Delete"

	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byKey[shortKey]
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	delete(r.byKey, shortKey)

	keys := r.byLongURL[link.LongURL]
	for i, k := range keys {
		if k == shortKey {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(r.byLongURL, link.LongURL)
	} else {
		r.byLongURL[link.LongURL] = keys
	}

	return nil
}

func (r *LinkRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey = make(map[string]*entity.Link)
	r.byLongURL = make(map[string][]string)

	return nil
}

// ListAll returns every link ordered by creation time.
func (r *LinkRepository) ListAll(_ context.Context) ([]*entity.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := make([]*entity.Link, 0, len(r.byKey))
	for _, link := range r.byKey {
		res := *link
		links = append(links, &res)
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ShortKey < links[j].ShortKey
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})

	return links, nil
}

// Len returns the number of stored links.
func (r *LinkRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byKey)
}
