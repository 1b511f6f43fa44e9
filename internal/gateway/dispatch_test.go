package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	d := NewDispatcher(8, func(ctx context.Context, delivery Delivery) error {
		mu.Lock()
		got = append(got, delivery.Text)
		mu.Unlock()
		if delivery.Final {
			close(done)
		}
		return nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for _, text := range []string{"one", "two"} {
		if !d.Enqueue(Delivery{Text: text, Incremental: true}) {
			t.Fatalf("enqueue %q failed", text)
		}
	}
	if !d.Enqueue(Delivery{Text: "three", Final: true}) {
		t.Fatal("enqueue final failed")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("final delivery never arrived")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("deliveries out of order: %v", got)
	}
}

func TestDispatcherReportsErrors(t *testing.T) {
	t.Parallel()

	failure := errors.New("send failed")
	errs := make(chan error, 1)
	d := NewDispatcher(4, func(ctx context.Context, delivery Delivery) error {
		return failure
	}, func(err error) { errs <- err }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if !d.Enqueue(Delivery{Text: "x"}) {
		t.Fatal("enqueue failed")
	}
	select {
	case err := <-errs:
		if !errors.Is(err, failure) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error never reported")
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(1, func(ctx context.Context, delivery Delivery) error { return nil }, nil, nil)
	d.Close()
	d.Close() // idempotent
	if d.Enqueue(Delivery{Text: "late"}) {
		t.Fatal("closed dispatcher accepted a delivery")
	}
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	t.Parallel()

	// No Run loop: the queue stays full.
	d := NewDispatcher(1, func(ctx context.Context, delivery Delivery) error { return nil }, nil, nil)
	if !d.Enqueue(Delivery{Text: "first"}) {
		t.Fatal("first enqueue failed")
	}
	if d.Enqueue(Delivery{Text: "second"}) {
		t.Fatal("full queue accepted a delivery")
	}
}
