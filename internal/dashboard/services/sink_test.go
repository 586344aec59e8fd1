package services

import (
	"context"
	"sync"

	"github.com/c14220110/clinic-queue/internal/events"
)

type recordingSink struct {
	mu  sync.Mutex
	got []string
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, e events.Event) error {
	s.mu.Lock()
	s.got = append(s.got, e.Type)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}
