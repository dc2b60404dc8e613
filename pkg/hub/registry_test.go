package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesOnlineRecord(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(store)

	require.NoError(t, r.Register("BOT-001", Attributes{"device": StringValue("Pixel")}))

	rec, ok := r.Get("BOT-001")
	require.True(t, ok)
	assert.True(t, rec.Online)
	assert.Equal(t, fixedNow, rec.LastSeen)
	assert.Equal(t, "Pixel", rec.Attributes.Get("device", "--"))
	assert.Empty(t, rec.Pending)
	assert.Equal(t, 1, store.count())
	assert.Contains(t, store.lastSnapshot(), "BOT-001")
}

func TestRegisterMergesAttributes(t *testing.T) {
	r := newTestRegistry(&memStore{})

	require.NoError(t, r.Register("a", Attributes{"device": StringValue("Pixel"), "battery": NumberValue(80)}))
	require.NoError(t, r.Register("a", Attributes{"battery": NumberValue(40)}))

	rec, _ := r.Get("a")
	assert.Equal(t, "Pixel", rec.Attributes.Get("device", "--"))
	assert.Equal(t, "40", rec.Attributes.Get("battery", "--"))
}

func TestRegisterKeepsPendingCommands(t *testing.T) {
	r := newTestRegistry(&memStore{})

	require.NoError(t, r.Enqueue("a", "SYNC"))
	require.NoError(t, r.Register("a", nil))

	rec, _ := r.Get("a")
	assert.Equal(t, []string{"SYNC"}, rec.Pending)
	assert.True(t, rec.Online)
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(store)

	err := r.Register("  ", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, r.List())
	assert.Zero(t, store.count())
}

func TestReportUnknownAgent(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(store)

	err := r.Report("ghost", Report{Attributes: Attributes{"battery": NumberValue(1)}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.Zero(t, store.count())
}

func TestReportMergeIsIdempotent(t *testing.T) {
	r := newTestRegistry(&memStore{})
	require.NoError(t, r.Register("a", Attributes{"device": StringValue("Pixel")}))
	require.NoError(t, r.SetPermission("a", "storage", "ALLOW"))

	rep := Report{Attributes: Attributes{"battery": NumberValue(50)}}
	require.NoError(t, r.Report("a", rep))
	require.NoError(t, r.Report("a", rep))

	rec, _ := r.Get("a")
	n, ok := rec.Attributes["battery"].Number()
	require.True(t, ok)
	assert.Equal(t, 50.0, n)
	assert.Equal(t, "Pixel", rec.Attributes.Get("device", "--"))
	assert.Equal(t, PermissionAllow, rec.Permissions["storage"])
	assert.True(t, rec.Online)
}

func TestReportReplacesOnlyNamedChannels(t *testing.T) {
	r := newTestRegistry(&memStore{})
	require.NoError(t, r.Register("a", nil))

	require.NoError(t, r.Report("a", Report{Channels: map[string][]ChannelEntry{
		"main":  {{ID: StringValue("1"), Message: "first"}},
		"audit": {{ID: NumberValue(7), Message: "kept"}},
	}}))
	require.NoError(t, r.Report("a", Report{Channels: map[string][]ChannelEntry{
		"main": {{ID: StringValue("2"), Message: "second"}},
	}}))

	rec, _ := r.Get("a")
	require.Len(t, rec.Channels["main"], 1)
	assert.Equal(t, "second", rec.Channels["main"][0].Message)
	require.Len(t, rec.Channels["audit"], 1)
	assert.Equal(t, "7", rec.Channels["audit"][0].ID.String())
}

func TestSetPermission(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(store)

	assert.ErrorIs(t, r.SetPermission("a", "storage", "ALLOW"), ErrNotFound)

	require.NoError(t, r.Register("a", nil))
	saves := store.count()

	assert.ErrorIs(t, r.SetPermission("a", "storage", "MAYBE"), ErrInvalidValue)
	assert.ErrorIs(t, r.SetPermission("a", "storage", "allow"), ErrInvalidValue)
	assert.Equal(t, saves, store.count(), "invalid values must not save")

	require.NoError(t, r.SetPermission("a", "storage", "DENIED"))
	rec, _ := r.Get("a")
	assert.Equal(t, PermissionDenied, rec.Permissions["storage"])
	assert.Equal(t, saves+1, store.count())
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := newTestRegistry(&memStore{})
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(id, nil))
	}
	require.NoError(t, r.Enqueue("late", "PING"))

	var ids []string
	for _, e := range r.List() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "late"}, ids)
}

func TestNewRegistryRestoresOrderFromSeq(t *testing.T) {
	records := map[string]AgentRecord{
		"c": {Seq: 2},
		"a": {Seq: 0, Online: true},
		"b": {Seq: 1},
	}
	r := NewRegistry(&memStore{}, records)

	var ids []string
	for _, e := range r.List() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, r.Register("d", nil))
	rec, _ := r.Get("d")
	assert.Equal(t, uint64(3), rec.Seq)
}

func TestStats(t *testing.T) {
	r := newTestRegistry(&memStore{})
	require.NoError(t, r.Register("a", nil))
	require.NoError(t, r.Register("b", nil))
	require.NoError(t, r.Enqueue("c", "PING"))

	assert.Equal(t, Stats{Total: 3, Online: 2, Offline: 1}, r.Stats())
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	store := &memStore{fail: true}
	r := newTestRegistry(store)

	require.NoError(t, r.Register("a", Attributes{"device": StringValue("Pixel")}))
	require.NoError(t, r.Enqueue("a", "PING"))

	rec, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"PING"}, rec.Pending)
	assert.Equal(t, 2, store.count())
	assert.Error(t, r.Flush())
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	r := newTestRegistry(&memStore{})
	require.NoError(t, r.Register("a", Attributes{"device": StringValue("Pixel")}))
	require.NoError(t, r.Enqueue("a", "PING"))

	rec, _ := r.Get("a")
	rec.Attributes["device"] = StringValue("tampered")
	rec.Pending[0] = "tampered"

	again, _ := r.Get("a")
	assert.Equal(t, "Pixel", again.Attributes.Get("device", "--"))
	assert.Equal(t, []string{"PING"}, again.Pending)
}

func TestConcurrentReportsDoNotLoseUpdates(t *testing.T) {
	r := newTestRegistry(&memStore{})
	require.NoError(t, r.Register("a", nil))

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%02d", i)
			assert.NoError(t, r.Report("a", Report{Attributes: Attributes{key: NumberValue(float64(i))}}))
		}(i)
	}
	wg.Wait()

	rec, _ := r.Get("a")
	assert.Len(t, rec.Attributes, writers)
}
