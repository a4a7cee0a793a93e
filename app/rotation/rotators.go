package rotation

import (
	"sync"
)

// RotatorSet is the registry of per-route rotators, constructed once at
// startup and shared by the scheduler, the API and the command surface.
type RotatorSet struct {
	mu       sync.RWMutex
	rotators map[string]*Rotator
}

func NewRotatorSet() *RotatorSet {
	return &RotatorSet{rotators: make(map[string]*Rotator)}
}

func (s *RotatorSet) Add(routeName string, rotator *Rotator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotators[routeName] = rotator
}

func (s *RotatorSet) Get(routeName string) (*Rotator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rotator, ok := s.rotators[routeName]
	return rotator, ok
}

func (s *RotatorSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.rotators))
	for name := range s.rotators {
		names = append(names, name)
	}
	return names
}
