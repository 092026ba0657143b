package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sig-0/fxcache/session"
	"github.com/sig-0/fxcache/types"
)

var (
	ErrUnknownTag   = errors.New("unknown request tag")
	ErrMissingField = errors.New("missing request field")
	ErrClosed       = errors.New("router closed")
)

// RateService answers rate lookups for the router
type RateService interface {
	// RatesFor returns fresh rates from base to every target, in target order
	RatesFor(
		ctx context.Context,
		base types.Currency,
		source types.Source,
		targets []types.Currency,
	) (types.Rates, error)

	// CurrentRates returns the cached rates only, never fetching
	CurrentRates(base types.Currency, source types.Source, targets []types.Currency) types.Rates

	// EarliestFetch returns the earliest fetch time of the source's cached rates
	EarliestFetch(source types.Source) (time.Time, bool)

	// SourceURL returns the human-facing URL of the source's rates
	SourceURL(source types.Source, base types.Currency) (string, error)
}

// Router dispatches inbound requests to the session and the rate service
type Router struct {
	rates   RateService
	session *session.Session
	logger  *slog.Logger

	// in-flight dispatched requests
	wg sync.WaitGroup

	closed bool
	mu     sync.RWMutex
}

// New creates a new message router
func New(rates RateService, session *session.Session, opts ...Option) *Router {
	r := &Router{
		rates:   rates,
		session: session,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Apply the options
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Dispatch starts handling the request and returns immediately.
// The response is delivered through the returned handle.
// The handling is not bound to ctx, so a mutation is never left half-done
func (r *Router) Dispatch(ctx context.Context, req Request) *Pending {
	p := newPending()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		p.resolve(nil, ErrClosed)

		return p
	}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		res, err := r.Handle(context.WithoutCancel(ctx), req)
		p.resolve(res, err)
	}()

	return p
}

// Close stops accepting requests, and waits for the dispatched ones
// to complete, or for ctx to be done
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Handle handles the request synchronously
func (r *Router) Handle(ctx context.Context, req Request) (any, error) {
	switch req.Greeting {
	case TagList:
		return r.list(ctx)
	case TagGetBaseCurrency:
		return r.session.BaseCurrency(), nil
	case TagSetBaseCurrency:
		return r.setBaseCurrency(ctx, req)
	case TagGetCurrentRates:
		return r.currentRates(), nil
	case TagReorderList:
		return r.reorderList(ctx, req)
	case TagReplaceForeignCurrency:
		return r.replaceForeignCurrency(ctx, req)
	case TagGetInputAmount:
		return r.inputAmount(), nil
	case TagSetInputAmount:
		return r.setInputAmount(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, req.Greeting)
	}
}

func (r *Router) list(ctx context.Context) (*ListResponse, error) {
	state := r.session.State()

	rates, err := r.rates.RatesFor(ctx, state.BaseCurrency, state.Source, state.TrackedList)
	if err != nil {
		return nil, err
	}

	fetchFrom, err := r.rates.SourceURL(state.Source, state.BaseCurrency)
	if err != nil {
		return nil, err
	}

	res := &ListResponse{
		BaseCurrency:  state.BaseCurrency,
		CurrencyRates: rates,
		FetchFrom:     fetchFrom,
		CurrentList:   state.TrackedList,
	}

	if earliest, ok := r.rates.EarliestFetch(state.Source); ok {
		ms := earliest.UnixMilli()
		res.FetchTime = &ms
	}

	return res, nil
}

func (r *Router) setBaseCurrency(ctx context.Context, req Request) (session.BaseChange, error) {
	if req.Currency == "" {
		return session.BaseChange{}, fmt.Errorf("%w: currency", ErrMissingField)
	}

	change, err := r.session.SetBaseCurrency(ctx, req.Currency)
	if err != nil {
		return session.BaseChange{}, err
	}

	r.logger.Info(
		"base currency changed",
		"old", change.OldCurrency.String(),
		"new", change.NewCurrency.String(),
	)

	return change, nil
}

func (r *Router) currentRates() types.Rates {
	state := r.session.State()

	return r.rates.CurrentRates(state.BaseCurrency, state.Source, state.TrackedList)
}

func (r *Router) reorderList(ctx context.Context, req Request) (types.Rates, error) {
	if req.From == nil || req.To == nil {
		return nil, fmt.Errorf("%w: from, to", ErrMissingField)
	}

	if err := r.session.ReorderTrackedList(ctx, *req.From, *req.To); err != nil {
		return nil, err
	}

	return r.trackedRates(ctx)
}

func (r *Router) replaceForeignCurrency(ctx context.Context, req Request) (types.Rates, error) {
	if req.WithCurrency == "" {
		return nil, fmt.Errorf("%w: with_currency", ErrMissingField)
	}

	changed, err := r.session.ReplaceEntryEqualToBase(ctx, req.WithCurrency)
	if err != nil {
		return nil, err
	}

	if changed {
		r.logger.Info(
			"replaced tracked base currency",
			"with", req.WithCurrency,
		)
	}

	return r.trackedRates(ctx)
}

// trackedRates returns the rates of the tracked list, as it is right now
func (r *Router) trackedRates(ctx context.Context) (types.Rates, error) {
	state := r.session.State()

	return r.rates.RatesFor(ctx, state.BaseCurrency, state.Source, state.TrackedList)
}

func (r *Router) inputAmount() InputAmountResponse {
	amount, ok := r.session.InputAmount()
	if !ok {
		return InputAmountResponse{}
	}

	return InputAmountResponse{Amount: &amount}
}

func (r *Router) setInputAmount(ctx context.Context, req Request) (InputAmountResponse, error) {
	if req.Amount == nil {
		return InputAmountResponse{}, fmt.Errorf("%w: amount", ErrMissingField)
	}

	if err := r.session.SetInputAmount(ctx, *req.Amount); err != nil {
		return InputAmountResponse{}, err
	}

	return r.inputAmount(), nil
}

// Pending is the handle of a dispatched request
type Pending struct {
	res  any
	err  error
	done chan struct{}
	id   xid.ID
}

func newPending() *Pending {
	return &Pending{
		id:   xid.New(),
		done: make(chan struct{}),
	}
}

// ID returns the unique request ID
func (p *Pending) ID() xid.ID {
	return p.id
}

// Done is closed once the response is available
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the response is available, or ctx is done
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.res, p.err
	}
}

func (p *Pending) resolve(res any, err error) {
	p.res = res
	p.err = err

	close(p.done)
}
