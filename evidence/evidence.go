// Package evidence persists fork and witness-misbehavior reports raised by
// the fork detector, adapted from the teacher's secondary-index pattern:
// subscribe to events, keep an append-only list per key in storage.DB.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/tmlight/detector"
	"github.com/tolelom/tmlight/events"
	"github.com/tolelom/tmlight/storage"
	"github.com/tolelom/tmlight/types"
)

const (
	prefixForkByHeight = "idx:fork:"
	prefixFaultyByPeer = "idx:faulty:"
)

// Store subscribes to fork/faulty events and indexes them for later
// retrieval over rpc's getEvidence method.
type Store struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates a Store backed by db and subscribes it to emitter.
func New(db storage.DB, emitter *events.Emitter) *Store {
	s := &Store{db: db, emitter: emitter}
	emitter.Subscribe(events.EventForkDetected, s.onForkDetected)
	emitter.Subscribe(events.EventWitnessFaulty, s.onWitnessFaulty)
	return s
}

// ForksAtHeight returns all recorded fork evidence for height.
func (s *Store) ForksAtHeight(height types.Height) ([]detector.Evidence, error) {
	data, err := s.getList(forkKey(height))
	if err != nil {
		return nil, err
	}
	var out []detector.Evidence
	for _, raw := range data {
		var ev detector.Evidence
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("evidence unmarshal: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// FaultyHeights returns every height at which peer was marked faulty.
func (s *Store) FaultyHeights(peer types.PeerID) ([]string, error) {
	return s.getList(faultyKey(peer))
}

func (s *Store) onForkDetected(ev events.Event) {
	raw, ok := ev.Data["evidence"].(detector.Evidence)
	if !ok {
		return
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		log.Printf("[evidence] marshal fork evidence at height %d: %v", ev.Height, err)
		return
	}
	if err := s.addToList(forkKey(types.Height(ev.Height)), string(encoded)); err != nil {
		log.Printf("[evidence] fork index write failed (height=%d): %v", ev.Height, err)
	}
}

func (s *Store) onWitnessFaulty(ev events.Event) {
	peer, _ := ev.Data["peer"].(string)
	if peer == "" {
		return
	}
	if err := s.addToList(faultyKey(types.PeerID(peer)), fmt.Sprintf("%d", ev.Height)); err != nil {
		log.Printf("[evidence] faulty index write failed (peer=%s): %v", peer, err)
	}
}

func forkKey(height types.Height) string { return fmt.Sprintf("%s%d", prefixForkByHeight, height) }
func faultyKey(peer types.PeerID) string { return prefixFaultyByPeer + string(peer) }

func (s *Store) getList(key string) ([]string, error) {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("evidence unmarshal: %w", err)
	}
	return ids, nil
}

func (s *Store) addToList(key, value string) error {
	ids, err := s.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), data)
}
