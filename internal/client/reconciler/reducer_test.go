package reconciler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

var errOffline = fmt.Errorf("%w: connection refused", models.ErrNetworkFailure)

func readySession() session {
	return session{
		state:     StateReady,
		token:     "token",
		epoch:     3,
		favorites: []string{"Talca", "Arica"},
	}
}

func hasEffect[T effect](effects []effect) bool {
	for _, eff := range effects {
		if _, ok := eff.(T); ok {
			return true
		}
	}
	return false
}

func findEffect[T effect](t *testing.T, effects []effect) T {
	t.Helper()
	for _, eff := range effects {
		if typed, ok := eff.(T); ok {
			return typed
		}
	}
	var zero T
	t.Fatalf("effect %T not found in %#v", zero, effects)
	return zero
}

func TestReduceStart(t *testing.T) {
	s, effects := reduce(session{}, evStart{favorites: []string{"Talca"}}, policy{})
	assert.Equal(t, StateAnonymous, s.state)
	assert.Equal(t, []string{"Talca"}, s.favorites)
	assert.Empty(t, effects)

	s, effects = reduce(session{}, evStart{token: "stored", favorites: []string{"Talca"}}, policy{})
	assert.Equal(t, StateVerifying, s.state)
	assert.Equal(t, []string{"Talca"}, s.favorites, "the cache is shown while verifying")
	verify := findEffect[effVerify](t, effects)
	assert.Equal(t, "stored", verify.token)
	assert.Equal(t, s.epoch, verify.epoch)
}

func TestReduceVerifyToReady(t *testing.T) {
	s, _ := reduce(session{}, evStart{token: "stored", favorites: []string{"Local"}}, policy{})

	s, effects := reduce(s, evVerifyDone{epoch: s.epoch}, policy{})
	assert.Equal(t, StateAuthenticated, s.state)
	begin := findEffect[effBeginSyncDown](t, effects)

	s, effects = reduce(s, evBeginSyncDown{epoch: begin.epoch}, policy{})
	assert.Equal(t, StateSyncingDown, s.state)
	fetch := findEffect[effFetch](t, effects)

	s, effects = reduce(s, evGetDone{epoch: fetch.epoch, favorites: []string{"Temuco", "Valdivia", "Temuco"}}, policy{})
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, []string{"Temuco", "Valdivia"}, s.favorites, "server wins on load")
	assert.False(t, s.dirty)
	assert.Equal(t, []string{"Temuco", "Valdivia"}, findEffect[effPersistFavorites](t, effects).favorites)
	assert.False(t, hasEffect[effSchedulePush](effects), "an unchanged server copy is not pushed back")
}

func TestReduceVerifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		policy policy
	}{
		{
			name: "expired token",
			err:  models.ErrUnauthenticated,
		},
		{
			name: "network failure",
			err:  errOffline,
		},
		{
			name:   "network failure with logout policy",
			err:    errOffline,
			policy: policy{logoutOnNetworkFailure: true},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, _ := reduce(session{}, evStart{token: "stored", favorites: []string{"Local"}}, test.policy)

			next, effects := reduce(s, evVerifyDone{epoch: s.epoch, err: test.err}, test.policy)
			assert.Equal(t, StateAnonymous, next.state)
			assert.Empty(t, next.token)
			assert.ErrorIs(t, next.lastErr, test.err)
			assert.Greater(t, next.epoch, s.epoch)
			assert.Equal(t, []string{"Local"}, next.favorites, "a failed verification keeps the cache visible")
			assert.Equal(t, "", findEffect[effPersistToken](t, effects).token)
			assert.False(t, hasEffect[effClearCache](effects))
			assert.False(t, hasEffect[effScheduleRetry](effects))
			assert.False(t, hasEffect[effPush](effects))

			_, effects = reduce(next, evRetryDue{epoch: s.epoch}, test.policy)
			assert.Empty(t, effects, "nothing is retried for the dropped session")
		})
	}
}

func TestReduceGetFailure(t *testing.T) {
	syncing := session{state: StateSyncingDown, token: "token", epoch: 2, favorites: []string{"Local"}}

	s, effects := reduce(syncing, evGetDone{epoch: 2, err: models.ErrUnauthenticated}, policy{})
	assert.Equal(t, StateAnonymous, s.state)
	assert.Empty(t, s.token)
	assert.Empty(t, s.favorites, "no residual favorites after a post-login auth failure")
	assert.True(t, hasEffect[effClearCache](effects))

	s, effects = reduce(syncing, evGetDone{epoch: 2, err: errOffline}, policy{})
	assert.Equal(t, StateSyncingDown, s.state)
	assert.Equal(t, "token", s.token)
	assert.True(t, hasEffect[effScheduleRetry](effects))

	s, _ = reduce(syncing, evGetDone{epoch: 2, err: errOffline}, policy{logoutOnNetworkFailure: true})
	assert.Equal(t, StateAnonymous, s.state)
	assert.Empty(t, s.favorites)

	_, effects = reduce(s, evRetryDue{epoch: 2}, policy{})
	assert.Empty(t, effects, "a retry timer from the dropped session is ignored")
}

func TestReduceRetry(t *testing.T) {
	syncing := session{state: StateSyncingDown, token: "token", epoch: 4}
	_, effects := reduce(syncing, evRetryDue{epoch: 4}, policy{})
	assert.Equal(t, "token", findEffect[effFetch](t, effects).token)

	verifying := session{state: StateVerifying, token: "token", epoch: 4}
	_, effects = reduce(verifying, evRetryDue{epoch: 4}, policy{})
	assert.Empty(t, effects, "verification is never retried")

	_, effects = reduce(readySession(), evRetryDue{epoch: 3}, policy{})
	assert.Empty(t, effects)
}

func TestReduceMutationsJournalledUntilServerCopyArrives(t *testing.T) {
	s := session{state: StateSyncingDown, token: "token", epoch: 1, favorites: []string{"Local"}}

	s, effects := reduce(s, evMutation{m: mutation{op: OpAdd, name: "Punta Arenas"}}, policy{})
	assert.Equal(t, []string{"Local", "Punta Arenas"}, s.favorites, "mutations show up immediately")
	assert.True(t, hasEffect[effPersistFavorites](effects))
	assert.False(t, hasEffect[effSchedulePush](effects))

	s, _ = reduce(s, evMutation{m: mutation{op: OpRemove, name: "Arica"}}, policy{})
	s, _ = reduce(s, evMutation{m: mutation{op: OpAdd, name: "Talca"}}, policy{})
	require.Len(t, s.pending, 3)

	s, effects = reduce(s, evGetDone{epoch: 1, favorites: []string{"Talca", "Arica", "Calama"}}, policy{})
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, []string{"Talca", "Calama", "Punta Arenas"}, s.favorites)
	assert.Empty(t, s.pending)
	assert.True(t, s.dirty)
	assert.Equal(t, effSchedulePush{epoch: 1}, findEffect[effSchedulePush](t, effects))
}

func TestReduceMutationsInReady(t *testing.T) {
	tests := []struct {
		name          string
		m             mutation
		wantFavorites []string
		wantPush      bool
	}{
		{"add", mutation{OpAdd, "Calama"}, []string{"Talca", "Arica", "Calama"}, true},
		{"add trims", mutation{OpAdd, "  Calama "}, []string{"Talca", "Arica", "Calama"}, true},
		{"add duplicate", mutation{OpAdd, "Arica"}, []string{"Talca", "Arica"}, false},
		{"add empty", mutation{OpAdd, "   "}, []string{"Talca", "Arica"}, false},
		{"remove", mutation{OpRemove, "Talca"}, []string{"Arica"}, true},
		{"remove missing", mutation{OpRemove, "Calama"}, []string{"Talca", "Arica"}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			before := readySession()
			s, effects := reduce(before, evMutation{m: test.m}, policy{})

			assert.Equal(t, test.wantFavorites, s.favorites)
			assert.Equal(t, test.wantPush, s.dirty)
			assert.Equal(t, test.wantPush, hasEffect[effSchedulePush](effects))
			assert.Equal(t, []string{"Talca", "Arica"}, before.favorites, "reduce must not mutate its input")
		})
	}
}

func TestReduceMutationWhileAnonymousIsLocalOnly(t *testing.T) {
	s := session{state: StateAnonymous, favorites: []string{"Talca"}}

	s, effects := reduce(s, evMutation{m: mutation{op: OpAdd, name: "Arica"}}, policy{})
	assert.Equal(t, []string{"Talca", "Arica"}, s.favorites)
	assert.False(t, s.dirty)
	assert.Empty(t, s.pending)
	assert.Len(t, effects, 1)
	assert.True(t, hasEffect[effPersistFavorites](effects))

	_, effects = reduce(s, evFlush{}, policy{})
	assert.Empty(t, effects)
}

func TestReducePushCycle(t *testing.T) {
	s := readySession()
	s, _ = reduce(s, evMutation{m: mutation{op: OpAdd, name: "Calama"}}, policy{})

	s, effects := reduce(s, evPushDue{epoch: s.epoch}, policy{})
	assert.Equal(t, StateSyncingUp, s.state)
	push := findEffect[effPush](t, effects)
	assert.Equal(t, []string{"Talca", "Arica", "Calama"}, push.favorites)
	assert.Equal(t, "token", push.token)

	s, effects = reduce(s, evMutation{m: mutation{op: OpAdd, name: "Iquique"}}, policy{})
	assert.True(t, s.dirty)
	assert.False(t, hasEffect[effSchedulePush](effects), "no second push while one is in flight")
	assert.Equal(t, []string{"Talca", "Arica", "Calama"}, push.favorites, "a push carries a snapshot")

	s, effects = reduce(s, evPushDone{epoch: s.epoch}, policy{})
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, effSchedulePush{epoch: s.epoch}, findEffect[effSchedulePush](t, effects))

	s, _ = reduce(s, evPushDue{epoch: s.epoch}, policy{})
	s, effects = reduce(s, evPushDone{epoch: s.epoch}, policy{})
	assert.Equal(t, StateReady, s.state)
	assert.False(t, s.dirty)
	assert.Empty(t, effects)
}

func TestReducePushFailure(t *testing.T) {
	s := readySession()
	s.state = StateSyncingUp

	next, effects := reduce(s, evPushDone{epoch: s.epoch, err: errOffline}, policy{})
	assert.Equal(t, StateReady, next.state)
	assert.True(t, next.dirty)
	assert.Equal(t, effSchedulePush{epoch: s.epoch, retry: true}, findEffect[effSchedulePush](t, effects))
	assert.ErrorIs(t, next.lastErr, models.ErrNetworkFailure)

	next, effects = reduce(s, evPushDone{epoch: s.epoch, err: models.ErrUnauthenticated}, policy{})
	assert.Equal(t, StateAnonymous, next.state)
	assert.Empty(t, next.favorites)
	assert.True(t, hasEffect[effClearCache](effects))
}

func TestReduceLogoutDropsStaleCompletions(t *testing.T) {
	s := session{state: StateSyncingDown, token: "token", epoch: 7, favorites: []string{"Local"}}

	s, effects := reduce(s, evLogout{}, policy{})
	assert.Equal(t, StateAnonymous, s.state)
	assert.Empty(t, s.token)
	assert.Empty(t, s.favorites)
	assert.True(t, hasEffect[effClearCache](effects))
	assert.True(t, hasEffect[effCancelTimers](effects))

	stale := []event{
		evGetDone{epoch: 7, favorites: []string{"Resurrected"}},
		evVerifyDone{epoch: 7},
		evPushDone{epoch: 7},
		evPushDue{epoch: 7},
		evRetryDue{epoch: 7},
		evBeginSyncDown{epoch: 7},
	}
	for _, ev := range stale {
		t.Run(fmt.Sprintf("%T", ev), func(t *testing.T) {
			next, effects := reduce(s, ev, policy{})
			assert.Equal(t, s, next)
			assert.Empty(t, effects)
		})
	}
}

func TestReduceLoginResetsSession(t *testing.T) {
	s := readySession()
	s.dirty = true
	s.lastErr = errors.New("old")

	next, effects := reduce(s, evLoginSucceeded{token: "fresh"}, policy{})
	assert.Equal(t, StateAuthenticated, next.state)
	assert.Equal(t, "fresh", next.token)
	assert.False(t, next.dirty)
	assert.Nil(t, next.lastErr)
	assert.Greater(t, next.epoch, s.epoch)
	assert.Equal(t, "fresh", findEffect[effPersistToken](t, effects).token)
	assert.Equal(t, next.epoch, findEffect[effBeginSyncDown](t, effects).epoch)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "syncing-down", StateSyncingDown.String())
	assert.Equal(t, "unknown", State(42).String())
}
