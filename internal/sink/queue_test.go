package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linuxmatters/avfeed/internal/media"
)

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()
	q := NewQueue[int](4)

	for i := 1; i <= 4; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
	}
	if got := q.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}

	for want := 1; want <= 4; want++ {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if got != want {
			t.Errorf("Pop = %d, want %d", got, want)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned an item")
	}
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	t.Parallel()
	q := NewQueue[int](1)
	if err := q.Push(1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(2)
	}()

	select {
	case err := <-pushed:
		t.Fatalf("Push on full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if got, _ := q.Pop(); got != 1 {
		t.Errorf("Pop = %d, want 1", got)
	}

	select {
	case err := <-pushed:
		if err != nil {
			t.Errorf("blocked Push returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Push did not resume after Pop")
	}
	if got, _ := q.Pop(); got != 2 {
		t.Errorf("Pop = %d, want 2", got)
	}
}

// A producer blocked on a full queue must be released by Reset, with a slow
// consumer that never pops.
func TestQueue_ResetReleasesBlockedPush(t *testing.T) {
	t.Parallel()
	q := NewQueue[int](1)
	if err := q.Push(1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(2)
	}()

	// Give the producer time to block.
	time.Sleep(20 * time.Millisecond)
	q.Reset()

	select {
	case err := <-pushed:
		if !errors.Is(err, ErrReset) {
			t.Errorf("Push after Reset = %v, want ErrReset", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reset did not release the blocked producer")
	}

	if got := q.Len(); got != 0 {
		t.Errorf("Len after Reset = %d, want 0", got)
	}

	// The queue is still usable after a reset.
	if err := q.Push(3); err != nil {
		t.Fatalf("Push after Reset failed: %v", err)
	}
	if got, _ := q.Pop(); got != 3 {
		t.Errorf("Pop = %d, want 3", got)
	}
}

func TestQueue_CloseReleasesWaiters(t *testing.T) {
	t.Parallel()
	full := NewQueue[int](1)
	_ = full.Push(1)
	empty := NewQueue[int](1)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- full.Push(2)
	}()
	go func() {
		defer wg.Done()
		_, err := empty.Pop()
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	full.Close()
	empty.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not release waiters")
	}
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("waiter returned %v, want ErrClosed", err)
		}
	}

	// Buffered items survive Close.
	if got, err := full.Pop(); err != nil || got != 1 {
		t.Errorf("Pop after Close = %d, %v; want 1, nil", got, err)
	}
	if _, err := full.Pop(); !errors.Is(err, ErrClosed) {
		t.Errorf("Pop on drained closed queue = %v, want ErrClosed", err)
	}
	if err := full.Push(5); !errors.Is(err, ErrClosed) {
		t.Errorf("Push on closed queue = %v, want ErrClosed", err)
	}
}

func TestQueue_PopContextCancel(t *testing.T) {
	t.Parallel()
	q := NewQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.PopContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PopContext = %v, want DeadlineExceeded", err)
	}
}

func TestNewQueue_MinimumCapacity(t *testing.T) {
	q := NewQueue[int](0)
	if q.Cap() != 1 {
		t.Errorf("Cap = %d, want 1", q.Cap())
	}
}

func TestAudioQueue_WantSeekClears(t *testing.T) {
	a := NewAudioQueue(0)
	if a.Cap() != DefaultAudioBlocks {
		t.Errorf("Cap = %d, want %d", a.Cap(), DefaultAudioBlocks)
	}
	if a.WantSeek() {
		t.Error("WantSeek true before any request")
	}
	a.RequestSeek()
	if !a.WantSeek() {
		t.Error("WantSeek false after RequestSeek")
	}
	if a.WantSeek() {
		t.Error("WantSeek did not clear the request")
	}
}

func TestAudioQueue_StreamParameters(t *testing.T) {
	a := NewAudioQueue(4)
	a.SetSamplesPerSecond(96000)
	a.SetDuration(12.5)
	if got := a.SamplesPerSecond(); got != 96000 {
		t.Errorf("SamplesPerSecond = %d, want 96000", got)
	}
	if got := a.Duration(); got != 12.5 {
		t.Errorf("Duration = %v, want 12.5", got)
	}

	block := media.SampleBlock{Timestamp: 1, Channels: 2, Samples: []int16{1, 2}}
	if err := a.Push(block); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	got, ok := a.TryPop()
	if !ok || got.Timestamp != 1 || len(got.Samples) != 2 {
		t.Errorf("TryPop = %+v, %v", got, ok)
	}
}

func TestVideoQueue_EndOfStream(t *testing.T) {
	v := NewVideoQueue(0)
	if v.Cap() != DefaultVideoFrames {
		t.Errorf("Cap = %d, want %d", v.Cap(), DefaultVideoFrames)
	}
	if err := v.Push(media.EndOfStream()); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	f, err := v.Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if !f.IsEndOfStream() {
		t.Error("popped frame is not the end-of-stream sentinel")
	}
}
