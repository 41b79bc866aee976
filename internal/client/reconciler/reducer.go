package reconciler

import (
	"errors"
	"slices"
	"strings"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

// State is the session state of the reconciler.
type State int

const (
	// StateAnonymous has no usable token. Mutations stay local.
	StateAnonymous State = iota
	// StateVerifying checks a stored token against the server.
	StateVerifying
	// StateAuthenticated holds an accepted token, the download is about to start.
	StateAuthenticated
	// StateSyncingDown waits for the server copy, which replaces the local one.
	StateSyncingDown
	// StateReady is in sync; local mutations schedule a debounced push.
	StateReady
	// StateSyncingUp has a push of the whole list in flight.
	StateSyncingUp
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateSyncingDown:
		return "syncing-down"
	case StateReady:
		return "ready"
	case StateSyncingUp:
		return "syncing-up"
	}

	return "unknown"
}

// Op is a local list mutation.
type Op int

const (
	OpAdd Op = iota
	OpRemove
)

type mutation struct {
	op   Op
	name string
}

// session is owned by the event loop. reduce never mutates its input.
type session struct {
	state     State
	token     string
	epoch     uint64
	favorites []string
	// Mutations made before the server copy arrived, replayed on top of it.
	pending []mutation
	// Local changes not yet pushed.
	dirty   bool
	lastErr error
}

type policy struct {
	logoutOnNetworkFailure bool
}

type event interface{ isEvent() }

type (
	evStart struct {
		token     string
		favorites []string
	}
	evLoginSucceeded struct{ token string }
	evBeginSyncDown  struct{ epoch uint64 }
	evVerifyDone     struct {
		epoch uint64
		err   error
	}
	evGetDone struct {
		epoch     uint64
		favorites []string
		err       error
	}
	evMutation struct{ m mutation }
	evPushDue  struct{ epoch uint64 }
	evPushDone struct {
		epoch uint64
		err   error
	}
	evRetryDue struct{ epoch uint64 }
	evFlush    struct{}
	evLogout   struct{}
)

func (evStart) isEvent()          {}
func (evLoginSucceeded) isEvent() {}
func (evBeginSyncDown) isEvent()  {}
func (evVerifyDone) isEvent()     {}
func (evGetDone) isEvent()        {}
func (evMutation) isEvent()       {}
func (evPushDue) isEvent()        {}
func (evPushDone) isEvent()       {}
func (evRetryDue) isEvent()       {}
func (evFlush) isEvent()          {}
func (evLogout) isEvent()         {}

type effect interface{ isEffect() }

type (
	effVerify struct {
		epoch uint64
		token string
	}
	effFetch struct {
		epoch uint64
		token string
	}
	effPush struct {
		epoch     uint64
		token     string
		favorites []string
	}
	effSchedulePush struct {
		epoch uint64
		retry bool
	}
	effScheduleRetry    struct{ epoch uint64 }
	effCancelTimers     struct{}
	effPersistFavorites struct{ favorites []string }
	effPersistToken     struct{ token string }
	effClearCache       struct{}
	effBeginSyncDown    struct{ epoch uint64 }
)

func (effVerify) isEffect()           {}
func (effFetch) isEffect()            {}
func (effPush) isEffect()             {}
func (effSchedulePush) isEffect()     {}
func (effScheduleRetry) isEffect()    {}
func (effCancelTimers) isEffect()     {}
func (effPersistFavorites) isEffect() {}
func (effPersistToken) isEffect()     {}
func (effClearCache) isEffect()       {}
func (effBeginSyncDown) isEffect()    {}

// reduce computes the next session and the side effects to run.
func reduce(s session, ev event, p policy) (session, []effect) {
	switch ev := ev.(type) {
	case evStart:
		s.favorites = copyList(ev.favorites)
		if ev.token == "" {
			s.state = StateAnonymous
			return s, nil
		}
		s.epoch++
		s.token = ev.token
		s.state = StateVerifying
		return s, []effect{effVerify{epoch: s.epoch, token: s.token}}

	case evLoginSucceeded:
		s.epoch++
		s.token = ev.token
		s.state = StateAuthenticated
		s.pending = nil
		s.dirty = false
		s.lastErr = nil
		return s, []effect{
			effCancelTimers{},
			effPersistToken{token: s.token},
			effBeginSyncDown{epoch: s.epoch},
		}

	case evBeginSyncDown:
		if ev.epoch != s.epoch || s.state != StateAuthenticated {
			return s, nil
		}
		s.state = StateSyncingDown
		return s, []effect{effFetch{epoch: s.epoch, token: s.token}}

	case evVerifyDone:
		if ev.epoch != s.epoch || s.state != StateVerifying {
			return s, nil
		}
		if ev.err == nil {
			s.state = StateAuthenticated
			s.lastErr = nil
			return s, []effect{effBeginSyncDown{epoch: s.epoch}}
		}
		// Any verification failure ends the session. The cached list stays
		// visible, only the token goes.
		s.lastErr = ev.err
		return dropSession(s, false)

	case evGetDone:
		if ev.epoch != s.epoch || s.state != StateSyncingDown {
			return s, nil
		}
		if ev.err != nil {
			s.lastErr = ev.err
			if isAuthFailure(ev.err) || p.logoutOnNetworkFailure {
				return dropSession(s, true)
			}
			return s, []effect{effScheduleRetry{epoch: s.epoch}}
		}
		s.lastErr = nil
		server := funk.UniqString(ev.favorites)
		s.favorites = server
		for _, m := range s.pending {
			s.favorites, _ = apply(s.favorites, m)
		}
		s.dirty = !slices.Equal(server, s.favorites)
		s.pending = nil
		s.state = StateReady
		effects := []effect{effPersistFavorites{favorites: copyList(s.favorites)}}
		if s.dirty {
			effects = append(effects, effSchedulePush{epoch: s.epoch})
		}
		return s, effects

	case evMutation:
		m := ev.m
		m.name = strings.TrimSpace(m.name)
		if m.name == "" {
			return s, nil
		}
		favorites, changed := apply(s.favorites, m)
		var effects []effect
		if changed {
			s.favorites = favorites
			effects = append(effects, effPersistFavorites{favorites: copyList(favorites)})
		}
		switch s.state {
		case StateVerifying, StateAuthenticated, StateSyncingDown:
			s.pending = append(append([]mutation(nil), s.pending...), m)
		case StateReady:
			if changed {
				s.dirty = true
				effects = append(effects, effSchedulePush{epoch: s.epoch})
			}
		case StateSyncingUp:
			if changed {
				s.dirty = true
			}
		}
		return s, effects

	case evPushDue:
		if ev.epoch != s.epoch {
			return s, nil
		}
		return startPush(s)

	case evFlush:
		return startPush(s)

	case evPushDone:
		if ev.epoch != s.epoch || s.state != StateSyncingUp {
			return s, nil
		}
		if ev.err != nil && isAuthFailure(ev.err) {
			s.lastErr = ev.err
			return dropSession(s, true)
		}
		s.state = StateReady
		if ev.err != nil {
			s.lastErr = ev.err
			s.dirty = true
			return s, []effect{effSchedulePush{epoch: s.epoch, retry: true}}
		}
		s.lastErr = nil
		if s.dirty {
			return s, []effect{effSchedulePush{epoch: s.epoch}}
		}
		return s, nil

	case evRetryDue:
		if ev.epoch != s.epoch {
			return s, nil
		}
		if s.state == StateSyncingDown {
			return s, []effect{effFetch{epoch: s.epoch, token: s.token}}
		}
		return s, nil

	case evLogout:
		s.epoch++
		s.state = StateAnonymous
		s.token = ""
		s.favorites = []string{}
		s.pending = nil
		s.dirty = false
		s.lastErr = nil
		return s, []effect{effCancelTimers{}, effClearCache{}}
	}

	return s, nil
}

func startPush(s session) (session, []effect) {
	if s.state != StateReady || !s.dirty {
		return s, nil
	}
	s.state = StateSyncingUp
	s.dirty = false
	return s, []effect{effPush{epoch: s.epoch, token: s.token, favorites: copyList(s.favorites)}}
}

// dropSession returns to Anonymous and forgets the token. With clearCache the
// local list is emptied as well.
func dropSession(s session, clearCache bool) (session, []effect) {
	s.epoch++
	s.state = StateAnonymous
	s.token = ""
	s.pending = nil
	s.dirty = false
	effects := []effect{effCancelTimers{}}
	if clearCache {
		s.favorites = []string{}
		return s, append(effects, effClearCache{})
	}
	return s, append(effects, effPersistToken{token: ""})
}

func apply(favorites []string, m mutation) ([]string, bool) {
	switch m.op {
	case OpAdd:
		if funk.ContainsString(favorites, m.name) {
			return favorites, false
		}
		return append(copyList(favorites), m.name), true
	case OpRemove:
		if !funk.ContainsString(favorites, m.name) {
			return favorites, false
		}
		return funk.FilterString(favorites, func(name string) bool { return name != m.name }), true
	}

	return favorites, false
}

func isAuthFailure(err error) bool {
	return errors.Is(err, models.ErrUnauthenticated) ||
		errors.Is(err, models.ErrUnauthorized) ||
		errors.Is(err, models.ErrInvalidCredentials)
}

func copyList(list []string) []string {
	result := make([]string, len(list))
	copy(result, list)

	return result
}
