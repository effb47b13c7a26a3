package livesvc

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const subscriberBuffer = 32

// Message is one server-sent event.
type Message struct {
	Event string
	Data  interface{}
}

// WriteTo writes the message in the text/event-stream format.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return 0, err
	}
	n, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Event, data)
	return int64(n), err
}

// SubscriberGauge tracks the number of open subscriptions.
type SubscriberGauge interface {
	SubscriberAdded(topic string)
	SubscriberRemoved(topic string)
}

type subscriber struct {
	id uint64
	ch chan Message
}

// Broker fans messages out to the subscribers of a topic.
// Publishing never blocks: a subscriber whose buffer is full misses the message.
type Broker struct {
	mu     sync.RWMutex
	topics map[string][]*subscriber
	nextID uint64
	gauge  SubscriberGauge
}

func NewBroker(gauge SubscriberGauge) *Broker {
	if gauge == nil {
		gauge = nopGauge{}
	}
	return &Broker{topics: make(map[string][]*subscriber), gauge: gauge}
}

// Subscribe registers a subscriber to topic. The returned func unsubscribes and closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan Message, func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Message, subscriberBuffer)}
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()
	b.gauge.SubscriberAdded(topic)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			subs := b.topics[topic]
			for i, s := range subs {
				if s.id == sub.id {
					subs = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.topics, topic)
			} else {
				b.topics[topic] = subs
			}
			close(sub.ch)
			b.mu.Unlock()
			b.gauge.SubscriberRemoved(topic)
		})
	}
	return sub.ch, unsubscribe
}

// Publish sends an event to the current subscribers of topic.
func (b *Broker) Publish(topic, event string, data interface{}) {
	msg := Message{Event: event, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- msg:
		default: // slow subscriber
		}
	}
}

// Subscribers counts the subscribers of topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

type nopGauge struct{}

func (nopGauge) SubscriberAdded(string)   {}
func (nopGauge) SubscriberRemoved(string) {}
