package queue

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestNewConsumer_DefaultsZeroConfig(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{})

	if c.workers != 2 {
		t.Errorf("Default workers = %d; want 2", c.workers)
	}
	if c.prefetch != 1 {
		t.Errorf("Default prefetch = %d; want 1", c.prefetch)
	}
}

func TestNewConsumer_PreservesCustomConfig(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{Workers: 10, Prefetch: 5})

	if c.workers != 10 {
		t.Errorf("Custom workers = %d; want 10", c.workers)
	}
	if c.prefetch != 5 {
		t.Errorf("Custom prefetch = %d; want 5", c.prefetch)
	}
}

func TestNotificationConsumer_SubscribeUnsubscribe(t *testing.T) {
	nc := NewNotificationConsumer(nil)

	id := uuid.New().String()

	nc.Subscribe(id, func(n *Notification) {})

	nc.handlersMu.RLock()
	_, exists := nc.handlers[id]
	nc.handlersMu.RUnlock()
	if !exists {
		t.Error("handler should be registered after Subscribe")
	}

	nc.Unsubscribe(id)

	nc.handlersMu.RLock()
	_, exists = nc.handlers[id]
	nc.handlersMu.RUnlock()
	if exists {
		t.Error("handler should be gone after Unsubscribe")
	}
}

func TestNotificationConsumer_Subscribe_ConcurrentSafe(t *testing.T) {
	nc := NewNotificationConsumer(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New().String()
			nc.Subscribe(id, func(n *Notification) {})
			nc.Unsubscribe(id)
		}()
	}
	wg.Wait()
}

func TestNotificationConsumer_Unsubscribe_NonExistent(t *testing.T) {
	nc := NewNotificationConsumer(nil)

	// Must not panic
	nc.Unsubscribe("never-registered")
}

func TestConsumer_Stop_NilCancelFunc(t *testing.T) {
	c := NewConsumer(nil, nil, DefaultConsumerConfig())

	// Stop before Start must not panic
	c.Stop()
}

func TestNotificationConsumer_Stop_NilCancelFunc(t *testing.T) {
	nc := NewNotificationConsumer(nil)

	nc.Stop()
}
