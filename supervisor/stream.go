// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import "sync"

// stream fans values out to subscribers. Each subscriber owns an unbounded
// queue drained by its own goroutine, so publishing never blocks and a slow
// reader never loses or reorders values.
type stream[T any] struct {
	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

func newStream[T any]() *stream[T] {
	return &stream[T]{subs: make(map[*subscriber[T]]struct{})}
}

// subscribe registers a reader. backlog is delivered before anything published later.
func (s *stream[T]) subscribe(backlog []T) (<-chan T, func()) {
	sub := &subscriber[T]{
		out:    make(chan T),
		wake:   make(chan struct{}, 1),
		cancel: make(chan struct{}),
		queue:  append([]T(nil), backlog...),
	}

	s.mu.Lock()
	if s.closed {
		sub.closed = true
	} else {
		s.subs[sub] = struct{}{}
	}
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.cancel)
		})
	}
}

func (s *stream[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for sub := range s.subs {
		sub.push(v)
	}
}

// close ends the stream. Subscribers still receive everything already queued.
func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		sub.finish()
	}
	clear(s.subs)
}

type subscriber[T any] struct {
	out    chan T
	wake   chan struct{}
	cancel chan struct{}

	mu     sync.Mutex
	queue  []T
	closed bool
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.cancel:
				return
			}
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.cancel:
			return
		}
	}
}
