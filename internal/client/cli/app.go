// Package cli implements favoritesctl. Commands given on the command line run
// once; without a command an interactive shell is started. Both drive the
// reconciler, which keeps the SQLite cache and the server in sync.
package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/patric-chuzhbe/favsync/internal/client/api"
	"github.com/patric-chuzhbe/favsync/internal/client/config"
	"github.com/patric-chuzhbe/favsync/internal/client/localcache"
	"github.com/patric-chuzhbe/favsync/internal/client/reconciler"
	"github.com/patric-chuzhbe/favsync/internal/logger"
)

const (
	requestRetries    = 2
	requestRetryWait  = 200 * time.Millisecond
	minSettleDeadline = time.Second
)

type App struct {
	cfg          *config.Config
	cache        *localcache.Cache
	favorites    *reconciler.Reconciler
	reader       *bufio.Reader
	out          io.Writer
	fromTerminal bool
	stop         context.CancelFunc
}

type InitOption func(*App)

// WithInput replaces stdin. Passwords are then read as plain lines.
func WithInput(r io.Reader) InitOption {
	return func(a *App) {
		a.reader = bufio.NewReader(r)
		a.fromTerminal = false
	}
}

func WithOutput(w io.Writer) InitOption {
	return func(a *App) {
		a.out = w
	}
}

// NewApp opens the cache and starts the reconciler. The caller must Close
// the app to push pending changes and release the cache.
func NewApp(ctx context.Context, cfg *config.Config, optionsProto ...InitOption) (*App, error) {
	a := &App{
		cfg:          cfg,
		reader:       bufio.NewReader(os.Stdin),
		out:          os.Stdout,
		fromTerminal: term.IsTerminal(int(os.Stdin.Fd())),
	}
	for _, protoOption := range optionsProto {
		protoOption(a)
	}

	cache, err := localcache.Open(ctx, cfg.CachePath)
	if err != nil {
		return nil, err
	}
	a.cache = cache

	remote := api.New(
		cfg.ServerURL,
		cfg.RequestTimeout.Duration,
		api.WithRetries(requestRetries, requestRetryWait),
	)

	a.favorites = reconciler.New(
		remote,
		cache,
		reconciler.WithDebounce(cfg.PushDebounce.Duration),
		reconciler.WithRetryInterval(cfg.RetryInterval.Duration),
		reconciler.WithDefaultFavorites(cfg.DefaultFavorites),
		reconciler.WithLogoutOnNetworkFailure(cfg.LogoutOnNetworkFailure),
		reconciler.WithLogger(logger.Named("reconciler")),
	)

	runCtx, stop := context.WithCancel(ctx)
	if err := a.favorites.Run(runCtx); err != nil {
		stop()
		_ = cache.Close()
		return nil, err
	}
	a.stop = stop

	return a, nil
}

// Execute runs a single command, or the shell when args is empty.
func (a *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.Shell(ctx)
	}

	return a.dispatch(ctx, args[0], args[1:])
}

// Close pushes pending changes, waiting at most the settle deadline, then
// stops the reconciler and closes the cache.
func (a *App) Close(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(ctx, a.settleDeadline())
	flushErr := a.favorites.Flush(flushCtx)
	cancel()
	if flushErr != nil && !errors.Is(flushErr, reconciler.ErrStopped) {
		logger.Log.Warnw("Local changes may not have reached the server", "error", flushErr)
	}

	a.stop()
	<-a.favorites.Done()

	return a.cache.Close()
}

// settle waits for in-flight sync work. false means the deadline passed and
// the local copy is shown as is.
func (a *App) settle(ctx context.Context) bool {
	settleCtx, cancel := context.WithTimeout(ctx, a.settleDeadline())
	defer cancel()

	return a.favorites.WaitIdle(settleCtx) == nil
}

func (a *App) settleDeadline() time.Duration {
	return max(a.cfg.RequestTimeout.Duration*(requestRetries+1), minSettleDeadline)
}
