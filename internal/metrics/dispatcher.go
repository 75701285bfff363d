// Package metrics distributes per-episode training metrics to observers.
//
// The dispatcher implements a fan-out distribution system so dashboards,
// loggers or test probes can watch a training run without coupling to the
// trainer. Publication never blocks the training loop: a slow subscriber
// loses its oldest buffered record, and an absent sink is tolerated
// entirely.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"upbitquant/internal/model"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// publishBuffer is the capacity of the inbound publication channel.
const publishBuffer = 1000

// Subscriber is one registered observer of episode metrics.
type Subscriber struct {
	id int64
	ch chan model.EpisodeMetrics
}

// C returns the channel delivering episode metrics to this subscriber. The
// channel is closed on unsubscribe or dispatcher shutdown.
func (s *Subscriber) C() <-chan model.EpisodeMetrics {
	return s.ch
}

// subscription pairs a new subscriber with its registration acknowledgment.
type subscription struct {
	sub        *Subscriber
	registered chan struct{}
}

// Dispatcher fans episode metrics out to all subscribers.
//
// A single goroutine owns the subscriber map (actor model), so no mutex is
// needed: subscription, unsubscription and publication all flow through
// channels into that goroutine.
type Dispatcher struct {
	subscribers      map[int64]*Subscriber // owned by the dispatch goroutine
	subscriptionCh   chan subscription
	unsubscriptionCh chan *Subscriber
	publishCh        chan model.EpisodeMetrics
	done             chan struct{} // closed when the dispatch goroutine exits
	started          atomic.Bool
	randIDGen        *rand.Rand
}

// NewDispatcher returns a dispatcher ready to Start.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan subscription, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
		publishCh:        make(chan model.EpisodeMetrics, publishBuffer),
		done:             make(chan struct{}),
		randIDGen:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe registers a new observer. The request is handed to the dispatch
// goroutine via a channel so the subscriber map stays single-owner, and
// Subscribe waits for the registration acknowledgment: once it returns,
// a Publish is guaranteed to reach the new subscriber.
func (d *Dispatcher) Subscribe() (*Subscriber, error) {
	if !d.started.Load() {
		return nil, errors.New("dispatcher not started")
	}

	req := subscription{
		sub: &Subscriber{
			id: d.randIDGen.Int63(),
			ch: make(chan model.EpisodeMetrics, subscriberBuffer),
		},
		registered: make(chan struct{}),
	}

	select {
	case d.subscriptionCh <- req:
	case <-d.done:
		return nil, errors.New("dispatcher stopped")
	}

	select {
	case <-req.registered:
		return req.sub, nil
	case <-d.done:
		return nil, errors.New("dispatcher stopped")
	}
}

// Unsubscribe removes an observer and closes its channel.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) error {
	select {
	case d.unsubscriptionCh <- sub:
		return nil
	default:
		return fmt.Errorf("unsubscription channel is full")
	}
}

// Publish hands one episode record to the dispatcher. It never blocks: if
// the dispatcher cannot keep up, the record is dropped and the training
// loop carries on.
func (d *Dispatcher) Publish(m model.EpisodeMetrics) {
	if !d.started.Load() {
		return
	}
	select {
	case d.publishCh <- m:
	default:
		log.Warn().Int("episode", m.Episode).Msg("metrics dispatcher backlogged, dropping record")
	}
}

// Start launches the dispatch goroutine. It runs until the context is
// cancelled, at which point all subscriber channels are closed.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, sub := range d.subscribers {
				close(sub.ch)
			}
			d.subscribers = make(map[int64]*Subscriber)
			close(d.done)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Debug().Msg("metrics dispatcher stopped")
				return
			case req := <-d.subscriptionCh:
				d.subscribers[req.sub.id] = req.sub
				close(req.registered)
			case sub := <-d.unsubscriptionCh:
				d.remove(sub)
			case m := <-d.publishCh:
				d.dispatch(m)
			}
		}
	}()
	return nil
}

// remove deletes a subscriber and closes its channel. Only called from the
// dispatch goroutine.
func (d *Dispatcher) remove(sub *Subscriber) {
	if _, ok := d.subscribers[sub.id]; ok {
		delete(d.subscribers, sub.id)
		close(sub.ch)
	}
}

// dispatch delivers one record to every subscriber. Only called from the
// dispatch goroutine, so map access needs no locking.
//
// Slow subscribers never stall the system: when a subscriber's buffer is
// full, its oldest record is dropped so the newest is always delivered.
func (d *Dispatcher) dispatch(m model.EpisodeMetrics) {
	for _, sub := range d.subscribers {
		select {
		case sub.ch <- m:
		default:
			log.Debug().Int64("subscriber", sub.id).Msg("subscriber too slow, dropping oldest record")
			<-sub.ch
			sub.ch <- m
		}
	}
}
