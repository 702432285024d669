package bus

import (
	"sync"
	"testing"

	"procsight/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type payload struct {
	Rows []string
}

func TestPublishInRegistrationOrder(t *testing.T) {
	b := New[*payload]("test", logger.NewNopLogger())

	var order []string
	var seen []*payload
	for _, name := range []string{"a", "b", "c"} {
		name := name
		b.Subscribe(func(p *payload) {
			order = append(order, name)
			seen = append(seen, p)
		})
	}

	p := &payload{Rows: []string{"x"}}
	n := b.Publish(p)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, s := range seen {
		assert.Same(t, p, s)
	}
}

func TestCancelledSubscriberIsNeverCalledAgain(t *testing.T) {
	b := New[int]("test", logger.NewNopLogger())

	calls := 0
	sub := b.Subscribe(func(int) { calls++ })
	b.Publish(1)
	sub.Cancel()
	sub.Cancel()
	b.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Len())
}

func TestCancelDuringPublishSkipsLaterSubscriber(t *testing.T) {
	b := New[int]("test", logger.NewNopLogger())

	var second *Subscription
	secondCalls := 0
	b.Subscribe(func(int) { second.Cancel() })
	second = b.Subscribe(func(int) { secondCalls++ })

	n := b.Publish(1)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, secondCalls)
}

func TestSubscribeDuringPublishJoinsNextPass(t *testing.T) {
	b := New[int]("test", logger.NewNopLogger())

	lateCalls := 0
	once := sync.Once{}
	b.Subscribe(func(int) {
		once.Do(func() { b.Subscribe(func(int) { lateCalls++ }) })
	})

	b.Publish(1)
	assert.Equal(t, 0, lateCalls)
	b.Publish(2)
	assert.Equal(t, 1, lateCalls)
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := New[string]("test", logger.NewNopLogger())

	var got []string
	b.Subscribe(func(string) { panic("boom") })
	b.Subscribe(func(s string) { got = append(got, s) })

	n := b.Publish("hello")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"hello"}, got)
}

func TestDuplicateRegistration(t *testing.T) {
	b := New[int]("test", logger.NewNopLogger())

	calls := 0
	cb := func(int) { calls++ }
	first := b.Subscribe(cb)
	second := b.Subscribe(cb)
	assert.NotEqual(t, first.ID, second.ID)

	b.Publish(1)
	assert.Equal(t, 2, calls)
}

func TestCloseDropsSubscribers(t *testing.T) {
	b := New[int]("test", logger.NewNopLogger())

	calls := 0
	b.Subscribe(func(int) { calls++ })
	b.Close()

	b.Subscribe(func(int) { calls++ })
	assert.Equal(t, 0, b.Publish(1))
	assert.Equal(t, 0, calls)
}
