package linkquery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/common/future"
	"github.com/haukened/linkguard/internal/linking/common/log"
	"github.com/haukened/linkguard/internal/linking/domain"
	"github.com/haukened/linkguard/internal/linking/repos/linkstore/bloom"
)

// Error message constants for consistent error handling
const (
	errStoreRequired = "link store is required"
	errLookupFailed  = "link lookup for %s: %w"
	errCodeFailed    = "issue linking code for %s: %w"
)

// LinkStore is the authoritative link backend.
type LinkStore interface {
	LinkedAccount(player uuid.UUID) (string, bool, error)
	IssueCode(player uuid.UUID, now time.Time, ttl time.Duration) (string, error)
	VisitLinked(visit func(player uuid.UUID) bool) error
}

// StatusCache holds recent definitive answers.
type StatusCache interface {
	Get(user domain.UserIdentity) (domain.LinkCheck, bool)
	Put(user domain.UserIdentity, check domain.LinkCheck)
	Delete(user domain.UserIdentity)
}

// Options configures a Client.
type Options struct {
	// required parameters
	Store LinkStore

	// optional parameters
	Cache       StatusCache   // nil disables caching
	Timeout     time.Duration // per-query bound, default 5s
	CodeTTL     time.Duration // lifetime of issued linking codes, default 10m
	BloomFPRate float64       // 0 disables the linked-player filter
	Clock       clock.Clock
	Logger      log.Logger
}

// Client answers link-status queries asynchronously. Lookups run through
// cache → bloom → store. Concurrent lookups for the same player and
// freshness share one backend call.
type Client struct {
	store   LinkStore
	cache   StatusCache
	timeout time.Duration
	codeTTL time.Duration
	fpRate  float64
	clock   clock.Clock
	logger  log.Logger

	group singleflight.Group
	bloom atomic.Pointer[bloom.Filter]

	// filterMu orders rebuilds against adds so a link made during a
	// rebuild lands in the filter that is swapped in.
	filterMu sync.Mutex
}

// flightJoined runs once a caller is registered with a lookup flight;
// replaceable in tests.
var flightJoined = func(key string) {}

// NewClient creates a Client and builds the linked-player filter when enabled.
func NewClient(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New(errStoreRequired)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	c := &Client{
		store:   opts.Store,
		cache:   opts.Cache,
		timeout: opts.Timeout,
		codeTTL: opts.CodeTTL,
		fpRate:  opts.BloomFPRate,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if c.fpRate > 0 {
		if err := c.RebuildFilter(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// QueryLinkStatus starts a lookup and returns its pending result.
// forceFresh bypasses the status cache; the kick path always sets it.
// A failed or timed-out lookup resolves to LinkUnknown with the error.
func (c *Client) QueryLinkStatus(ctx context.Context, user domain.UserIdentity, forceFresh bool) *future.Future[domain.LinkCheck] {
	if !forceFresh && c.cache != nil {
		if check, ok := c.cache.Get(user); ok {
			return future.Resolved(check, nil)
		}
	}

	f, resolve := future.New[domain.LinkCheck]()
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		check, err := c.lookup(ctx, user, forceFresh)
		if err != nil {
			c.logger.Warn(map[string]any{"player": user.String(), "error": err}, "Link status query failed")
			resolve(domain.UnknownCheck(), err)
			return
		}
		resolve(check, nil)
	}()
	return f
}

func (c *Client) lookup(ctx context.Context, user domain.UserIdentity, fresh bool) (domain.LinkCheck, error) {
	key := user.Key() + "/" + strconv.FormatBool(fresh)
	ch := c.group.DoChan(key, func() (any, error) {
		check, err := c.resolve(user)
		if err == nil && c.cache != nil {
			c.cache.Put(user, check)
		}
		return check, err
	})
	flightJoined(key)
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.UnknownCheck(), res.Err
		}
		return res.Val.(domain.LinkCheck), nil
	case <-ctx.Done():
		return domain.UnknownCheck(), fmt.Errorf(errLookupFailed, user, ctx.Err())
	}
}

// resolve consults the bloom filter, then the store.
func (c *Client) resolve(user domain.UserIdentity) (domain.LinkCheck, error) {
	if !c.maybeLinked(user.ID) {
		return c.unlinked(user)
	}
	_, linked, err := c.store.LinkedAccount(user.ID)
	if err != nil {
		return domain.UnknownCheck(), fmt.Errorf(errLookupFailed, user, err)
	}
	if linked {
		return domain.LinkCheck{Status: domain.LinkLinked}, nil
	}
	return c.unlinked(user)
}

func (c *Client) unlinked(user domain.UserIdentity) (domain.LinkCheck, error) {
	code, err := c.store.IssueCode(user.ID, c.clock.Now(), c.codeTTL)
	if err != nil {
		return domain.UnknownCheck(), fmt.Errorf(errCodeFailed, user, err)
	}
	return domain.LinkCheck{Status: domain.LinkUnlinked, Code: code}, nil
}

// maybeLinked returns false only if the filter rules the player out.
// Without a filter every player must be checked against the store.
func (c *Client) maybeLinked(id uuid.UUID) bool {
	bf := c.bloom.Load()
	return bf == nil || bf.MightContain(id)
}

// RebuildFilter sizes a fresh filter for the current link count and swaps it in.
func (c *Client) RebuildFilter() error {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	return c.rebuildFilterLocked()
}

func (c *Client) rebuildFilterLocked() error {
	var ids []uuid.UUID
	if err := c.store.VisitLinked(func(id uuid.UUID) bool {
		ids = append(ids, id)
		return true
	}); err != nil {
		return fmt.Errorf("rebuild linked filter: %w", err)
	}
	// headroom for links made before the next rebuild
	bf := bloom.New(uint64(len(ids))*2+1024, c.fpRate)
	for _, id := range ids {
		bf.Add(id)
	}
	c.bloom.Store(bf)
	return nil
}

// LinkChanged keeps the cache and the filter in step with the store.
// Unlinks force a rebuild because a bloom filter cannot forget.
func (c *Client) LinkChanged(id uuid.UUID, linked bool) {
	if c.cache != nil {
		c.cache.Delete(domain.UserIdentity{ID: id})
	}
	if c.fpRate <= 0 {
		return
	}
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if linked {
		if bf := c.bloom.Load(); bf != nil {
			bf.Add(id)
		}
		return
	}
	if err := c.rebuildFilterLocked(); err != nil {
		c.logger.Error(map[string]any{"error": err}, "Linked filter rebuild failed; disabling filter")
		c.bloom.Store(nil)
	}
}
