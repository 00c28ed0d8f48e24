package lightstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tolelom/tmlight/storage"
	"github.com/tolelom/tmlight/types"
)

// Key prefixes for the three families of entries LevelStore persists. Every
// key after the prefix carries the height as an 8-byte big-endian integer,
// so a storage.Iterator over a prefix walks heights in ascending order —
// the same encoding idiom the teacher uses for its height index.
const (
	prefixBlock  = "lb/"
	prefixStatus = "st/"
	prefixFailed = "fl/"
)

// LevelStore is a Store persisted through the storage.DB capability
// interface, grounded on the teacher's LevelDB-backed block store: the same
// Get/Set/NewIterator(prefix) pattern, keyed and valued for
// types.LightBlock and types.VerificationStatus instead of core.Block.
type LevelStore struct {
	db storage.DB
}

// NewLevelStore wraps db as a LightBlock store.
func NewLevelStore(db storage.DB) *LevelStore {
	return &LevelStore{db: db}
}

func heightKey(prefix string, height types.Height) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(height))
	return append([]byte(prefix), buf[:]...)
}

func failedKey(height types.Height, peer types.PeerID) []byte {
	return append(heightKey(prefixFailed, height), []byte("/"+string(peer))...)
}

func decodeHeight(key []byte, prefix string) types.Height {
	raw := key[len(prefix):]
	return types.Height(binary.BigEndian.Uint64(raw[:8]))
}

func (s *LevelStore) readStatus(height types.Height) (types.VerificationStatus, bool) {
	val, err := s.db.Get(heightKey(prefixStatus, height))
	if err != nil {
		return 0, false
	}
	return types.VerificationStatus(val[0]), true
}

func (s *LevelStore) writeStatus(height types.Height, status types.VerificationStatus) error {
	return s.db.Set(heightKey(prefixStatus, height), []byte{byte(status)})
}

func (s *LevelStore) Insert(block *types.LightBlock, status types.VerificationStatus) error {
	h := block.Height()
	if existing, ok := s.readStatus(h); ok {
		if existing != types.Unverified || (status != types.Verified && status != types.Failed) {
			return ErrAlreadyExists
		}
	}
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode light block at height %d: %w", h, err)
	}
	if err := s.db.Set(heightKey(prefixBlock, h), raw); err != nil {
		return err
	}
	return s.writeStatus(h, status)
}

func (s *LevelStore) Get(height types.Height) (*types.LightBlock, types.VerificationStatus, error) {
	raw, err := s.db.Get(heightKey(prefixBlock, height))
	if err == storage.ErrNotFound {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	var block types.LightBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, 0, fmt.Errorf("decode light block at height %d: %w", height, err)
	}
	status, _ := s.readStatus(height)
	return &block, status, nil
}

func (s *LevelStore) SetStatus(height types.Height, status types.VerificationStatus) error {
	if status == types.Verified || status == types.Trusted {
		if _, err := s.db.Get(heightKey(prefixBlock, height)); err != nil {
			return ErrBlockRequired
		}
	}
	return s.writeStatus(height, status)
}

func (s *LevelStore) MarkFailed(height types.Height, peer types.PeerID) error {
	return s.db.Set(failedKey(height, peer), []byte{1})
}

func (s *LevelStore) HasFailed(height types.Height, peer types.PeerID) bool {
	_, err := s.db.Get(failedKey(height, peer))
	return err == nil
}

func (s *LevelStore) RemoveUnverified(height types.Height, peer types.PeerID) error {
	block, status, err := s.Get(height)
	if err != nil || status != types.Unverified || block.Provider != peer {
		return nil
	}
	batch := s.db.NewBatch()
	batch.Delete(heightKey(prefixBlock, height))
	batch.Delete(heightKey(prefixStatus, height))
	return batch.Write()
}

func (s *LevelStore) HighestBelowOfStatus(height types.Height, statuses ...types.VerificationStatus) (*types.LightBlock, bool) {
	it := s.db.NewIterator([]byte(prefixStatus))
	defer it.Release()
	var bestHeight types.Height
	found := false
	for it.Next() {
		h := decodeHeight(it.Key(), prefixStatus)
		if h >= height {
			continue
		}
		st := types.VerificationStatus(it.Value()[0])
		if !statusIn(st, statuses) {
			continue
		}
		if !found || h > bestHeight {
			bestHeight, found = h, true
		}
	}
	if !found {
		return nil, false
	}
	block, _, err := s.Get(bestHeight)
	if err != nil {
		return nil, false
	}
	return block, true
}

func (s *LevelStore) HighestOfStatus(statuses ...types.VerificationStatus) (*types.LightBlock, bool) {
	it := s.db.NewIterator([]byte(prefixStatus))
	defer it.Release()
	var bestHeight types.Height
	found := false
	for it.Next() {
		st := types.VerificationStatus(it.Value()[0])
		if !statusIn(st, statuses) {
			continue
		}
		h := decodeHeight(it.Key(), prefixStatus)
		if !found || h > bestHeight {
			bestHeight, found = h, true
		}
	}
	if !found {
		return nil, false
	}
	block, _, err := s.Get(bestHeight)
	if err != nil {
		return nil, false
	}
	return block, true
}

func (s *LevelStore) LowestAboveOfStatus(height types.Height, statuses ...types.VerificationStatus) (*types.LightBlock, bool) {
	it := s.db.NewIterator([]byte(prefixStatus))
	defer it.Release()
	var bestHeight types.Height
	found := false
	for it.Next() {
		h := decodeHeight(it.Key(), prefixStatus)
		if h <= height {
			continue
		}
		st := types.VerificationStatus(it.Value()[0])
		if !statusIn(st, statuses) {
			continue
		}
		if !found || h < bestHeight {
			bestHeight, found = h, true
		}
	}
	if !found {
		return nil, false
	}
	block, _, err := s.Get(bestHeight)
	if err != nil {
		return nil, false
	}
	return block, true
}
