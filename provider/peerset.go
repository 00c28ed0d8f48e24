package provider

import (
	"errors"
	"sync"

	"github.com/tolelom/tmlight/types"
)

// ErrNoPrimary is returned when a PeerSet has exhausted its primary and has
// no witness left to promote.
var ErrNoPrimary = errors.New("provider: no primary available")

// PeerSet manages one primary and N witness providers, grounded on the
// teacher's peer map plus mutex discipline (network.Node) but without any
// gossip bookkeeping — this module only ever issues request/response RPCs.
type PeerSet struct {
	mu       sync.RWMutex
	primary  Provider
	witness  []Provider
	byID     map[types.PeerID]Provider
}

// NewPeerSet builds a PeerSet with primary as the initial primary and
// witnesses as the initial witness pool.
func NewPeerSet(primary Provider, witnesses ...Provider) *PeerSet {
	s := &PeerSet{
		byID: make(map[types.PeerID]Provider, 1+len(witnesses)),
	}
	s.primary = primary
	s.byID[primary.ID()] = primary
	for _, w := range witnesses {
		s.witness = append(s.witness, w)
		s.byID[w.ID()] = w
	}
	return s
}

// Primary returns the current primary, or nil if none remains.
func (s *PeerSet) Primary() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary
}

// Witnesses returns a snapshot of the current witness set.
func (s *PeerSet) Witnesses() []Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Provider, len(s.witness))
	copy(out, s.witness)
	return out
}

// AddWitness registers a new witness.
func (s *PeerSet) AddWitness(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.witness = append(s.witness, p)
	s.byID[p.ID()] = p
}

// RemoveWitness drops the witness with the given ID, if present.
func (s *PeerSet) RemoveWitness(id types.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.witness {
		if w.ID() == id {
			s.witness = append(s.witness[:i], s.witness[i+1:]...)
			delete(s.byID, id)
			return
		}
	}
}

// PromoteWitness replaces the primary with the first available witness,
// implementing the supervisor's "promote the first available witness"
// primary-failure policy. The failed primary is discarded entirely (not
// demoted to a witness): a peer that just failed is not a peer to retry.
func (s *PeerSet) PromoteWitness() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary != nil {
		delete(s.byID, s.primary.ID())
	}
	if len(s.witness) == 0 {
		s.primary = nil
		return ErrNoPrimary
	}
	s.primary, s.witness = s.witness[0], s.witness[1:]
	return nil
}

// ByID looks up any peer (primary or witness) by ID.
func (s *PeerSet) ByID(id types.PeerID) (Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}
