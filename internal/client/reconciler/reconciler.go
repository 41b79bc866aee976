// Package reconciler keeps the client copy of the favorites list consistent
// with the server. A single event loop owns the session; network calls run
// in the background and report back as events, so a completion that arrives
// after a logout or a new login is recognised by its epoch and dropped.
//
// On load the server copy wins. Mutations made while the download is pending
// are journalled and replayed on top of the server copy, then pushed.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

const (
	defaultDebounce      = 500 * time.Millisecond
	defaultRetryInterval = 5 * time.Second
	eventBufferSize      = 64
)

var (
	// ErrNotRunning is returned by operations issued before Run.
	ErrNotRunning = errors.New("reconciler is not running")

	// ErrStopped is returned once the Run context is done.
	ErrStopped = errors.New("reconciler stopped")

	// ErrAlreadyRunning is returned by a second Run call.
	ErrAlreadyRunning = errors.New("reconciler is already running")
)

// Remote is the favorites server as seen by the client.
type Remote interface {
	Login(ctx context.Context, identity, credential string) (string, error)

	VerifyToken(ctx context.Context, token string) error

	GetFavorites(ctx context.Context, token string) ([]string, error)

	SetFavorites(ctx context.Context, token string, favorites []string) error
}

// Cache persists the token and the local favorites list across restarts.
type Cache interface {
	LoadToken(ctx context.Context) (string, error)

	SaveToken(ctx context.Context, token string) error

	LoadFavorites(ctx context.Context) ([]string, bool, error)

	SaveFavorites(ctx context.Context, favorites []string) error

	Clear(ctx context.Context) error
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State     State
	Favorites []string
	LoggedIn  bool
	LastError error
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	remote        Remote
	cache         Cache
	log           *zap.SugaredLogger
	debounce      time.Duration
	retryInterval time.Duration
	defaults      []string
	policy        policy
	onTransition  func(from, to State)

	events  chan event
	done    chan struct{}
	started atomic.Bool
	running atomic.Bool

	mu       sync.RWMutex
	snapshot Snapshot
	busy     int
	idle     chan struct{}

	// Owned by the event loop.
	s          session
	runCtx     context.Context
	pushTimer  *time.Timer
	retryTimer *time.Timer
}

type Option func(*Reconciler)

// WithDebounce sets the quiet period before local changes are pushed.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) {
		r.debounce = d
	}
}

// WithRetryInterval sets the delay before a failed network step is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.retryInterval = d
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithDefaultFavorites seeds the list on the very first start, when the
// cache has never held one.
func WithDefaultFavorites(favorites []string) Option {
	return func(r *Reconciler) {
		r.defaults = funk.UniqString(favorites)
	}
}

// WithLogoutOnNetworkFailure makes a transport failure while downloading the
// server copy drop the session like an authentication failure. By default
// the download is retried and the session kept. A failed verification always
// drops the session.
func WithLogoutOnNetworkFailure(enabled bool) Option {
	return func(r *Reconciler) {
		r.policy.logoutOnNetworkFailure = enabled
	}
}

// WithTransitionHook is called from the event loop on every state change.
func WithTransitionHook(hook func(from, to State)) Option {
	return func(r *Reconciler) {
		r.onTransition = hook
	}
}

func New(remote Remote, cache Cache, optionsProto ...Option) *Reconciler {
	idle := make(chan struct{})
	close(idle)

	r := &Reconciler{
		remote:        remote,
		cache:         cache,
		log:           zap.NewNop().Sugar(),
		debounce:      defaultDebounce,
		retryInterval: defaultRetryInterval,
		defaults:      []string{},
		events:        make(chan event, eventBufferSize),
		done:          make(chan struct{}),
		idle:          idle,
		snapshot:      Snapshot{State: StateAnonymous, Favorites: []string{}},
		s:             session{state: StateAnonymous, favorites: []string{}},
	}
	for _, protoOption := range optionsProto {
		protoOption(r)
	}

	return r
}

// Run loads the cache and starts the event loop, which lives until ctx is
// done. A stored token is verified in the background; the cached list is
// readable immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	token, favorites, err := r.loadCache(ctx)
	if err != nil {
		// A failed start leaves the reconciler startable again.
		r.started.Store(false)
		return err
	}

	// The loop is not running yet, so the start event is handled here and
	// the cached list is readable as soon as Run returns.
	r.runCtx = ctx
	r.handle(evStart{token: token, favorites: favorites})
	r.running.Store(true)
	go r.loop(ctx)

	return nil
}

// loadCache reads the stored session. A cache that was never written is
// seeded with the default list.
func (r *Reconciler) loadCache(ctx context.Context) (string, []string, error) {
	token, err := r.cache.LoadToken(ctx)
	if err != nil {
		return "", nil, err
	}
	favorites, found, err := r.cache.LoadFavorites(ctx)
	if err != nil {
		return "", nil, err
	}
	if !found {
		favorites = copyList(r.defaults)
		if err := r.cache.SaveFavorites(ctx, favorites); err != nil {
			return "", nil, err
		}
	}

	return token, favorites, nil
}

// Login authenticates against the server in the calling goroutine. On
// success the session switches to the new token and the server copy is
// downloaded in the background.
func (r *Reconciler) Login(ctx context.Context, identity, credential string) error {
	if !r.running.Load() {
		return ErrNotRunning
	}

	token, err := r.remote.Login(ctx, identity, credential)
	if err != nil {
		return err
	}

	return r.send(evLoginSucceeded{token: token})
}

// Add appends name unless it is already present.
func (r *Reconciler) Add(name string) error {
	return r.send(evMutation{m: mutation{op: OpAdd, name: name}})
}

// Remove drops name from the list.
func (r *Reconciler) Remove(name string) error {
	return r.send(evMutation{m: mutation{op: OpRemove, name: name}})
}

// Logout forgets the token and empties the local list. The server copy is
// left untouched.
func (r *Reconciler) Logout() error {
	return r.send(evLogout{})
}

// Flush pushes pending local changes without waiting for the debounce and
// blocks until the reconciler is idle.
func (r *Reconciler) Flush(ctx context.Context) error {
	if err := r.send(evFlush{}); err != nil {
		return err
	}

	return r.WaitIdle(ctx)
}

// WaitIdle blocks until no event, network call or timer is pending.
func (r *Reconciler) WaitIdle(ctx context.Context) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	r.mu.RLock()
	idle := r.idle
	r.mu.RUnlock()

	select {
	case <-idle:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Favorites returns a copy of the current list.
func (r *Reconciler) Favorites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyList(r.snapshot.Favorites)
}

func (r *Reconciler) IsFavorite(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return funk.ContainsString(r.snapshot.Favorites, name)
}

func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot.State
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := r.snapshot
	snapshot.Favorites = copyList(r.snapshot.Favorites)

	return snapshot
}

// Done is closed once the event loop has exited.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) send(ev event) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	if !r.post(ev) {
		return ErrStopped
	}

	return nil
}

// post queues ev for the loop. The idle accounting is taken before the
// send so WaitIdle never observes a gap.
func (r *Reconciler) post(ev event) bool {
	r.acquire()
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		r.release()
		return false
	}
}

func (r *Reconciler) acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.busy == 0 {
		r.idle = make(chan struct{})
	}
	r.busy++
}

func (r *Reconciler) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.busy--
	if r.busy == 0 {
		close(r.idle)
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)
	defer r.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.handle(ev)
			r.release()
		}
	}
}

func (r *Reconciler) handle(first event) {
	queue := []event{first}
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		from := r.s.state
		next, effects := reduce(r.s, ev, r.policy)
		r.s = next
		r.publish()

		if from != next.state {
			r.log.Debugw("session transition", "from", from.String(), "to", next.state.String())
			if r.onTransition != nil {
				r.onTransition(from, next.state)
			}
		}

		for _, eff := range effects {
			if follow := r.perform(eff); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
}

func (r *Reconciler) publish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot = Snapshot{
		State:     r.s.state,
		Favorites: copyList(r.s.favorites),
		LoggedIn:  r.s.token != "",
		LastError: r.s.lastErr,
	}
}

// perform runs one effect. Network calls are spawned; cache writes happen
// in the loop so they stay ordered. A returned event is handled next.
func (r *Reconciler) perform(eff effect) event {
	switch eff := eff.(type) {
	case effVerify:
		r.spawn(func(ctx context.Context) event {
			return evVerifyDone{epoch: eff.epoch, err: r.remote.VerifyToken(ctx, eff.token)}
		})

	case effFetch:
		r.spawn(func(ctx context.Context) event {
			favorites, err := r.remote.GetFavorites(ctx, eff.token)
			return evGetDone{epoch: eff.epoch, favorites: favorites, err: err}
		})

	case effPush:
		r.stopTimer(&r.pushTimer)
		r.spawn(func(ctx context.Context) event {
			return evPushDone{epoch: eff.epoch, err: r.remote.SetFavorites(ctx, eff.token, eff.favorites)}
		})

	case effSchedulePush:
		delay := r.debounce
		if eff.retry {
			delay = r.retryInterval
		}
		r.schedule(&r.pushTimer, delay, evPushDue{epoch: eff.epoch})

	case effScheduleRetry:
		r.log.Debugw("network step failed, retrying", "in", r.retryInterval, zap.Error(r.s.lastErr))
		r.schedule(&r.retryTimer, r.retryInterval, evRetryDue{epoch: eff.epoch})

	case effCancelTimers:
		r.stopTimers()

	case effPersistFavorites:
		if err := r.cache.SaveFavorites(r.runCtx, eff.favorites); err != nil {
			r.log.Warnw("Failed to persist favorites", zap.Error(err))
		}

	case effPersistToken:
		if err := r.cache.SaveToken(r.runCtx, eff.token); err != nil {
			r.log.Warnw("Failed to persist token", zap.Error(err))
		}

	case effClearCache:
		if err := r.cache.Clear(r.runCtx); err != nil {
			r.log.Warnw("Failed to clear the local cache", zap.Error(err))
		}

	case effBeginSyncDown:
		return evBeginSyncDown{epoch: eff.epoch}
	}

	return nil
}

func (r *Reconciler) spawn(call func(ctx context.Context) event) {
	r.acquire()
	go func() {
		defer r.release()
		r.post(call(r.runCtx))
	}()
}

func (r *Reconciler) schedule(timer **time.Timer, delay time.Duration, ev event) {
	r.stopTimer(timer)
	r.acquire()
	*timer = time.AfterFunc(delay, func() {
		defer r.release()
		r.post(ev)
	})
}

func (r *Reconciler) stopTimer(timer **time.Timer) {
	if *timer != nil && (*timer).Stop() {
		r.release()
	}
	*timer = nil
}

func (r *Reconciler) stopTimers() {
	r.stopTimer(&r.pushTimer)
	r.stopTimer(&r.retryTimer)
}
