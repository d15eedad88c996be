package storetest

import (
	"context"
	"sync"

	"github.com/punchamoorthee/yieldledger/internal/domain"
)

// Settings is a mutable in-memory settings source that counts reads.
type Settings struct {
	mu    sync.Mutex
	value domain.Settings
	err   error
	Reads int
}

func NewSettings(s domain.Settings) *Settings {
	return &Settings{value: s}
}

func (s *Settings) Settings(ctx context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	return s.value, s.err
}

func (s *Settings) Set(v domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *Settings) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
