package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan ChangeSet) (ChangeSet, bool) {
	t.Helper()
	select {
	case set, ok := <-ch:
		return set, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced change set")
		return ChangeSet{}, false
	}
}

func assertQuiet(t *testing.T, ch <-chan ChangeSet, d time.Duration) {
	t.Helper()
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra change set %+v", extra)
	case <-time.After(d):
	}
}

func TestDebounce_MergesNamedCollections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan event.CollectionsChanged)
	out := Debounce(ctx, in, 30*time.Millisecond, nil)

	in <- event.CollectionsChanged{Collection: "0xde709f2102306220921060314715629080e2fb77", Reason: "sale"}
	in <- event.CollectionsChanged{Collection: "0x27b1fdb04752bbc536007a920d24acb045561c26", Reason: "listing"}
	in <- event.CollectionsChanged{Collection: "0xDE709F2102306220921060314715629080E2FB77", Reason: "cancel"}

	set, ok := receive(t, out)
	require.True(t, ok)
	assert.False(t, set.OwnerWide)
	assert.Equal(t, []string{
		"0xde709f2102306220921060314715629080e2fb77",
		"0x27b1fdb04752bbc536007a920d24acb045561c26",
	}, set.Collections)
	assert.Equal(t, "cancel", set.Reason)
	assert.Equal(t, 3, set.Events)

	assertQuiet(t, out, 80*time.Millisecond)
}

func TestDebounce_OwnerWideChangeWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan event.CollectionsChanged)
	out := Debounce(ctx, in, 30*time.Millisecond, nil)

	in <- event.CollectionsChanged{Collection: "0xa"}
	in <- event.CollectionsChanged{Reason: "transfer"}
	in <- event.CollectionsChanged{Collection: "0xb"}

	set, ok := receive(t, out)
	require.True(t, ok)
	assert.True(t, set.OwnerWide)
	assert.Empty(t, set.Collections)
	assert.Equal(t, 3, set.Events)
}

func TestDebounce_RejectedEventsDoNotReplaceAccepted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan event.CollectionsChanged)
	keep := func(ev event.CollectionsChanged) bool { return ev.Owner == "mine" }
	out := Debounce(ctx, in, 30*time.Millisecond, keep)

	in <- event.CollectionsChanged{Owner: "mine", Collection: "0xa"}
	in <- event.CollectionsChanged{Owner: "theirs", Collection: "0xb"}

	set, ok := receive(t, out)
	require.True(t, ok)
	assert.Equal(t, []string{"0xa"}, set.Collections)
	assert.Equal(t, 1, set.Events)

	// A window with only rejected events emits nothing.
	in <- event.CollectionsChanged{Owner: "theirs"}
	assertQuiet(t, out, 80*time.Millisecond)
}

func TestDebounce_SeparateBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan event.CollectionsChanged)
	out := Debounce(ctx, in, 10*time.Millisecond, nil)

	in <- event.CollectionsChanged{Collection: "0xa", Reason: "first"}
	set, _ := receive(t, out)
	assert.Equal(t, "first", set.Reason)

	in <- event.CollectionsChanged{Collection: "0xb", Reason: "second"}
	set, _ = receive(t, out)
	assert.Equal(t, "second", set.Reason)
	assert.Equal(t, []string{"0xb"}, set.Collections, "a new window starts empty")
}

func TestDebounce_FlushesOnClose(t *testing.T) {
	in := make(chan event.CollectionsChanged, 1)
	out := Debounce(context.Background(), in, time.Hour, nil)

	in <- event.CollectionsChanged{Reason: "last"}
	close(in)

	set, ok := receive(t, out)
	require.True(t, ok)
	assert.Equal(t, "last", set.Reason)

	_, ok = receive(t, out)
	assert.False(t, ok)
}

func TestDebounce_ZeroWaitPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan event.CollectionsChanged)
	out := Debounce(ctx, in, 0, nil)

	in <- event.CollectionsChanged{Reason: "now"}
	set, _ := receive(t, out)
	assert.Equal(t, "now", set.Reason)
	assert.True(t, set.OwnerWide)
}

func TestDebounce_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Debounce(ctx, make(chan event.CollectionsChanged), time.Millisecond, nil)
	cancel()

	_, ok := receive(t, out)
	assert.False(t, ok)
}
