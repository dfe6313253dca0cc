package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const keyChats = "chats"

func chatKey(id string) string     { return "chat/" + id }
func messagesKey(id string) string { return "messages/" + id }

// registry tracks live-query observers per query key. Writers call notify
// inside the write path; each observer holds a one-slot signal channel, so
// notifications coalesce and a slow reader never blocks a writer.
type registry struct {
	mu        sync.Mutex
	observers map[string]map[int]chan struct{}
	next      int
}

func newRegistry() *registry {
	return &registry{observers: make(map[string]map[int]chan struct{})}
}

func (r *registry) add(key string) (int, chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	sig := make(chan struct{}, 1)
	if r.observers[key] == nil {
		r.observers[key] = make(map[int]chan struct{})
	}
	r.observers[key][id] = sig
	return id, sig
}

func (r *registry) remove(key string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers[key], id)
	if len(r.observers[key]) == 0 {
		delete(r.observers, key)
	}
}

func (r *registry) notify(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		for _, sig := range r.observers[key] {
			signal(sig)
		}
	}
}

func (r *registry) notifyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, obs := range r.observers {
		for _, sig := range obs {
			signal(sig)
		}
	}
}

func (r *registry) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers[key])
}

func signal(sig chan struct{}) {
	select {
	case sig <- struct{}{}:
	default:
	}
}

// WatchChats streams the full chat list, newest activity first. The first
// value is the current snapshot; later values follow each change. The
// channel closes when ctx is done.
func (db *DB) WatchChats(ctx context.Context) <-chan []Chat {
	return watch(ctx, db, keyChats, db.ListChats)
}

// WatchChat streams a single chat; a nil value means the chat is gone.
func (db *DB) WatchChat(ctx context.Context, id string) <-chan *Chat {
	return watch(ctx, db, chatKey(id), func() (*Chat, error) { return db.GetChat(id) })
}

// WatchMessages streams the messages of a chat in timestamp order.
func (db *DB) WatchMessages(ctx context.Context, chatID string) <-chan []Message {
	return watch(ctx, db, messagesKey(chatID), func() ([]Message, error) { return db.ListMessages(chatID) })
}

func watch[T any](ctx context.Context, db *DB, key string, query func() (T, error)) <-chan T {
	out := make(chan T)
	id, sig := db.live.add(key)

	go func() {
		defer close(out)
		defer db.live.remove(key, id)

		for {
			snap, err := query()
			if err != nil {
				db.logger.Warn("live query failed", zap.String("key", key), zap.Error(err))
			} else {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-sig:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
