package lists_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/lists"
)

var errRemote = errors.New("remote failed")

type memoryRemote struct {
	mu       sync.Mutex
	items    []shopper.ShortlistEntry
	failAdd  error
	failDel  error
	addCalls int
	delCalls int
	// gate, when set, blocks Add until closed.
	gate chan struct{}
}

func (m *memoryRemote) Load(context.Context) ([]shopper.ShortlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shopper.ShortlistEntry(nil), m.items...), nil
}

func (m *memoryRemote) Add(_ context.Context, e shopper.ShortlistEntry) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.failAdd != nil {
		return m.failAdd
	}
	m.items = append(m.items, e)
	return nil
}

func (m *memoryRemote) Remove(_ context.Context, e shopper.ShortlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delCalls++
	return m.failDel
}

func names(entries []shopper.ShortlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func entry(name string) shopper.ShortlistEntry {
	return shopper.ShortlistEntry{Name: name}
}

func newReconciler(remote *memoryRemote, opts ...lists.Option) *lists.Reconciler[shopper.ShortlistEntry] {
	return lists.New[shopper.ShortlistEntry](remote, func(e shopper.ShortlistEntry) string { return e.Name }, opts...)
}

func TestAddDeduplicatesByNormalizedName(t *testing.T) {
	remote := &memoryRemote{}
	r := newReconciler(remote)
	ctx := context.Background()

	added, err := r.Add(ctx, entry("iPhone 15"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Add(ctx, entry(" iphone   15 "))
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{"iPhone 15"}, names(r.Items()))
	assert.Equal(t, 1, remote.addCalls, "duplicate must not reach the server")
	assert.True(t, r.Contains("IPHONE 15"))
}

func TestAddRollsBackOnFailure(t *testing.T) {
	remote := &memoryRemote{items: []shopper.ShortlistEntry{entry("Kindle"), entry("Pixel 8")}}
	r := newReconciler(remote)
	ctx := context.Background()
	require.NoError(t, r.Load(ctx))
	before := r.Items()

	remote.failAdd = errRemote
	added, err := r.Add(ctx, entry("Galaxy S24"))
	require.ErrorIs(t, err, errRemote)
	assert.False(t, added)
	assert.Equal(t, before, r.Items())
}

func TestAddIsVisibleBeforeServerConfirms(t *testing.T) {
	remote := &memoryRemote{gate: make(chan struct{})}
	r := newReconciler(remote)

	done := make(chan error, 1)
	go func() {
		_, err := r.Add(context.Background(), entry("Pixel 8"))
		done <- err
	}()

	require.Eventually(t, func() bool { return r.Contains("pixel 8") }, timeout, tick)
	close(remote.gate)
	require.NoError(t, <-done)
	assert.True(t, r.Contains("pixel 8"))
}

func TestRemoveRestoresPositionOnFailure(t *testing.T) {
	remote := &memoryRemote{items: []shopper.ShortlistEntry{entry("A"), entry("B"), entry("C")}}
	r := newReconciler(remote)
	ctx := context.Background()
	require.NoError(t, r.Load(ctx))

	remote.failDel = errRemote
	err := r.Remove(ctx, entry(" b "))
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, []string{"A", "B", "C"}, names(r.Items()))

	remote.failDel = nil
	require.NoError(t, r.Remove(ctx, entry("B")))
	assert.Equal(t, []string{"A", "C"}, names(r.Items()))
	assert.Equal(t, 2, remote.delCalls)
}

func TestRemoveUncachedEntryStillReachesServer(t *testing.T) {
	remote := &memoryRemote{}
	r := newReconciler(remote)
	ctx := context.Background()
	_, err := r.Add(ctx, entry("A"))
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, entry("Z")))
	assert.Equal(t, 1, remote.delCalls)

	remote.failDel = errRemote
	require.ErrorIs(t, r.Remove(ctx, entry("Z")), errRemote)
	assert.Equal(t, []string{"A"}, names(r.Items()))
	assert.Equal(t, 2, remote.delCalls)
}

func TestPrependKeepsNewestFirst(t *testing.T) {
	r := newReconciler(&memoryRemote{}, lists.WithPrepend())
	ctx := context.Background()

	for _, n := range []string{"first", "second", "third"} {
		_, err := r.Add(ctx, entry(n))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"third", "second", "first"}, names(r.Items()))
}

func TestDiscardDropsCacheAndSkipsStaleRollback(t *testing.T) {
	remote := &memoryRemote{gate: make(chan struct{}), failAdd: errRemote}
	r := newReconciler(remote)

	done := make(chan error, 1)
	go func() {
		_, err := r.Add(context.Background(), entry("Pixel 8"))
		done <- err
	}()
	require.Eventually(t, func() bool { return r.Len() == 1 }, timeout, tick)

	r.Discard()
	assert.Equal(t, 0, r.Len())

	close(remote.gate)
	require.ErrorIs(t, <-done, errRemote)
	assert.Equal(t, 0, r.Len())
}

func TestLoadReplacesCacheWholesale(t *testing.T) {
	remote := &memoryRemote{items: []shopper.ShortlistEntry{entry("server")}}
	r := newReconciler(remote)
	ctx := context.Background()

	_, err := r.Add(ctx, entry("local"))
	require.NoError(t, err)
	remote.items = []shopper.ShortlistEntry{entry("server")}

	require.NoError(t, r.Load(ctx))
	assert.Equal(t, []string{"server"}, names(r.Items()))
}

func TestItemsReturnsCopy(t *testing.T) {
	r := newReconciler(&memoryRemote{})
	_, err := r.Add(context.Background(), entry("A"))
	require.NoError(t, err)

	items := r.Items()
	items[0].Name = "mutated"
	assert.Equal(t, []string{"A"}, names(r.Items()))
}
