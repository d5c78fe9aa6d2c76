package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-rooms/pkg/models"
)

type fakeLister struct {
	mu    sync.Mutex
	rooms []models.Room
	err   error
	calls int
}

func (f *fakeLister) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]models.Room(nil), f.rooms...), f.err
}

func (f *fakeLister) set(rooms ...models.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = rooms
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	store := &fakeLister{}
	store.set(models.Room{Pin: "AAAA", AccessToken: "t1"}, models.Room{Pin: "BBBB", AccessToken: "t2"})
	reg := New(store)

	assert.Empty(t, reg.Rooms())
	require.NoError(t, reg.Refresh(context.Background()))
	assert.Equal(t, 2, reg.Len())

	store.set(models.Room{Pin: "CCCC", AccessToken: "t3"})
	require.NoError(t, reg.Refresh(context.Background()))

	_, ok := reg.Get("AAAA")
	assert.False(t, ok)
	room, ok := reg.Get("CCCC")
	assert.True(t, ok)
	assert.Equal(t, "t3", room.AccessToken)
}

func TestRefreshSkipsRoomsWithoutCredential(t *testing.T) {
	store := &fakeLister{}
	store.set(models.Room{Pin: "AAAA", AccessToken: "t1"}, models.Room{Pin: "BBBB"})
	reg := New(store)

	require.NoError(t, reg.Refresh(context.Background()))
	assert.Equal(t, 1, reg.Len())
}

func TestRefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	store := &fakeLister{}
	store.set(models.Room{Pin: "AAAA", AccessToken: "t1"})
	reg := New(store)
	require.NoError(t, reg.Refresh(context.Background()))

	store.err = errors.New("db down")
	assert.Error(t, reg.Refresh(context.Background()))
	assert.Equal(t, 1, reg.Len())
}

func TestRoomsReturnsCopy(t *testing.T) {
	store := &fakeLister{}
	store.set(models.Room{Pin: "AAAA", AccessToken: "t1"})
	reg := New(store)
	require.NoError(t, reg.Refresh(context.Background()))

	rooms := reg.Rooms()
	rooms[0].Pin = "ZZZZ"
	assert.Equal(t, "AAAA", reg.Rooms()[0].Pin)
}

func TestWatchRefreshesOnNotification(t *testing.T) {
	store := &fakeLister{}
	reg := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 4)
	go reg.Watch(ctx, changes)

	store.set(models.Room{Pin: "AAAA", AccessToken: "t1"})
	changes <- "rooms"

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, store.callCount(), 1)
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := &fakeLister{}
	reg := New(store)
	ctx := context.Background()

	small := []models.Room{{Pin: "AAAA", AccessToken: "x"}}
	large := []models.Room{{Pin: "AAAA", AccessToken: "x"}, {Pin: "BBBB", AccessToken: "x"}, {Pin: "CCCC", AccessToken: "x"}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := len(reg.Rooms())
			assert.Contains(t, []int{0, 1, 3}, n)
		}
	}()

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			store.set(small...)
		} else {
			store.set(large...)
		}
		require.NoError(t, reg.Refresh(ctx))
	}
	close(stop)
	wg.Wait()
}
