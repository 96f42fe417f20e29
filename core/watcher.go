// Package core implements tools shared by the ledger modules.
//
// The watcher is the fan-out primitive behind the Watch functions of the
// ledger service: every call result is pushed to the registered observers.
package core

import "sync"

// Observer is the interface to implement to receive events.
type Observer interface {
	NotifyCallback(event interface{})
}

// Observable provides primitives to register observers and to dispatch events
// to them.
type Observable interface {
	// Add registers the observer so that upcoming events are dispatched to
	// it.
	Add(observer Observer)

	// Remove unregisters the observer so that it stops receiving events.
	Remove(observer Observer)

	// Notify dispatches the event to every registered observer.
	Notify(event interface{})
}

// Watcher is a thread-safe implementation of the Observable interface.
//
// - implements core.Observable
type Watcher struct {
	sync.RWMutex

	watchers map[Observer]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{
		watchers: make(map[Observer]struct{}),
	}
}

// Add implements core.Observable. It registers the observer so that upcoming
// events are dispatched to it.
func (w *Watcher) Add(observer Observer) {
	w.Lock()
	w.watchers[observer] = struct{}{}
	w.Unlock()
}

// Remove implements core.Observable. It unregisters the observer so that it
// stops receiving events.
func (w *Watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.watchers, observer)
	w.Unlock()
}

// Notify implements core.Observable. It dispatches the event to the observers
// one after the other, in no particular order.
func (w *Watcher) Notify(event interface{}) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.watchers {
		obs.NotifyCallback(event)
	}
}
