package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, cancel
}

func recv(t *testing.T, s *Subscription) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := s.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return m
}

func TestHub_EverySubscriberSeesEveryMessage(t *testing.T) {
	h, _ := startHub(t)
	a, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b, err := h.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := uint64(1); i <= 3; i++ {
		if err := h.Publish(Message{Kind: CloseMarket, Sender: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for _, s := range []*Subscription{a, b} {
		for i := uint64(1); i <= 3; i++ {
			if m := recv(t, s); m.Sender != i || m.Kind != CloseMarket {
				t.Fatalf("message %d: %+v", i, m)
			}
		}
	}
}

func TestHub_LateSubscriberMissesEarlierMessages(t *testing.T) {
	h, _ := startHub(t)
	early, _ := h.Subscribe()
	if err := h.Publish(Message{Kind: Relay, Sender: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	recv(t, early) // the hub has fanned out the first message
	late, _ := h.Subscribe()
	if err := h.Publish(Message{Kind: Relay, Sender: 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if m := recv(t, late); m.Sender != 2 {
		t.Fatalf("late subscriber got %+v", m)
	}
}

func TestHub_ConcurrentPublishers(t *testing.T) {
	h, _ := startHub(t)
	sub, _ := h.Subscribe()

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := h.Publish(Message{Kind: CloseMarket, Sender: uint64(w + 1)}); err != nil {
					t.Errorf("publish: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	counts := make(map[uint64]int)
	for i := 0; i < workers*each; i++ {
		counts[recv(t, sub).Sender]++
	}
	for w := 1; w <= workers; w++ {
		if counts[uint64(w)] != each {
			t.Fatalf("sender %d: got %d want %d", w, counts[uint64(w)], each)
		}
	}
}

func TestHub_StopDisconnects(t *testing.T) {
	h, cancel := startHub(t)
	sub, _ := h.Subscribe()
	if err := h.Publish(Message{Kind: ConfirmClose, Receiver: 4}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	recv(t, sub)
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if _, err := sub.Receive(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("receive after stop: %v", err)
	}
	if err := h.Publish(Message{Kind: Relay}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after stop: %v", err)
	}
	if _, err := h.Subscribe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after stop: %v", err)
	}
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	h, _ := startHub(t)
	keep, _ := h.Subscribe()
	gone, _ := h.Subscribe()
	gone.Close()

	if err := h.Publish(Message{Kind: Relay, Sender: 9}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	recv(t, keep)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := gone.Receive(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("closed subscription: %v", err)
	}
}

func TestHub_StopDeliversEveryAcceptedPublish(t *testing.T) {
	for round := 0; round < 20; round++ {
		h, cancel := startHub(t)
		sub, _ := h.Subscribe()

		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if err := h.Publish(Message{Kind: Relay}); err != nil {
						if !errors.Is(err, ErrClosed) {
							t.Errorf("publish: %v", err)
						}
						return
					}
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		time.Sleep(time.Millisecond)
		cancel()
		wg.Wait()

		ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		got := 0
		for {
			_, err := sub.Receive(ctx)
			if errors.Is(err, ErrDisconnected) {
				break
			}
			if err != nil {
				stop()
				t.Fatalf("round %d: receive: %v", round, err)
			}
			got++
		}
		stop()
		if got != accepted {
			t.Fatalf("round %d: accepted %d publishes, delivered %d", round, accepted, got)
		}
	}
}
