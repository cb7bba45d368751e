package voice

import (
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voicestats/internal/cache"
	"voicestats/internal/clock"
)

// newTestCache spins up an in-process redis and wraps it in the cache client.
func newTestCache(t *testing.T) *cache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewFromClient(rdb)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testCalendar() *clock.Calendar {
	return clock.NewCalendar(9)
}

// fakeStore is an in-memory AggregateStore that mimics the additive upsert
// of the durable table.
type fakeStore struct {
	channelSec map[string]int64
	micOnSec   map[string]int64
	micOffSec  map[string]int64
	aloneSec   map[string]int64
	userNames  map[string]string
	calls      int
	failNext   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channelSec: make(map[string]int64),
		micOnSec:   make(map[string]int64),
		micOffSec:  make(map[string]int64),
		aloneSec:   make(map[string]int64),
		userNames:  make(map[string]string),
	}
}

func (f *fakeStore) AddChannelSeconds(guildID, userID, day, channelID, channelName, userName string, seconds int64) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	key := guildID + "|" + userID + "|" + day + "|" + channelID
	f.channelSec[key] += seconds
	f.userNames[key] = userName
	return nil
}

func (f *fakeStore) AddMicSeconds(guildID, userID, day string, onSeconds, offSeconds int64) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	key := guildID + "|" + userID + "|" + day
	f.micOnSec[key] += onSeconds
	f.micOffSec[key] += offSeconds
	return nil
}

func (f *fakeStore) AddAloneSeconds(guildID, userID, day string, seconds int64) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.aloneSec[guildID+"|"+userID+"|"+day] += seconds
	return nil
}

func (f *fakeStore) maybeFail() error {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("store unavailable")
	}
	return nil
}

// engine bundles the wired accrual components for tests.
type engine struct {
	cache    *cache.Client
	sessions *SessionStore
	ledger   *Ledger
	names    *NameCache
	store    *fakeStore
	flusher  *Flusher
	tracker  *Tracker
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	c := newTestCache(t)
	sessions := NewSessionStore(c)
	ledger := NewLedger(c)
	names := NewNameCache(c)
	store := newFakeStore()
	calendar := testCalendar()
	log := testLogger()
	flusher := NewFlusher(ledger, names, sessions, store, calendar, log)
	tracker := NewTracker(sessions, ledger, flusher, calendar, log)
	return &engine{
		cache:    c,
		sessions: sessions,
		ledger:   ledger,
		names:    names,
		store:    store,
		flusher:  flusher,
		tracker:  tracker,
	}
}
