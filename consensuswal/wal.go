package consensuswal

import (
	"encoding/binary"
	"fmt"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/wireformat"
	"github.com/ethereum/go-ethereum/rlp"
)

// SignedTxWAL persists the exact transaction batch a proposal committed
// to, keyed by (height, round), so a crashed node can reconstruct the
// block it was about to finalize instead of re-deriving it from a
// possibly-changed mempool (spec §4.5).
type SignedTxWAL struct {
	store Store
}

func NewSignedTxWAL(store Store) *SignedTxWAL {
	return &SignedTxWAL{store: store}
}

func signedTxKey(height, round uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], height)
	binary.BigEndian.PutUint64(key[8:16], round)
	return key
}

func (w *SignedTxWAL) Append(height, round uint64, txs []axontypes.SignedTransaction) error {
	enc, err := wireformat.EncodeTxBatch(txs)
	if err != nil {
		return err
	}
	return w.store.Put(signedTxKey(height, round), enc)
}

func (w *SignedTxWAL) Load(height, round uint64) ([]axontypes.SignedTransaction, bool, error) {
	raw, ok, err := w.store.Get(signedTxKey(height, round))
	if err != nil || !ok {
		return nil, ok, err
	}
	txs, err := wireformat.DecodeTxBatch(raw)
	if err != nil {
		return nil, false, err
	}
	return txs, true, nil
}

// Prune removes every entry at or below height, the bound on
// unfinalized-height retention called out in spec §5.
func (w *SignedTxWAL) Prune(height uint64) error {
	var toDelete [][]byte
	err := w.store.Iterate(nil, func(key, _ []byte) bool {
		if len(key) == 16 && binary.BigEndian.Uint64(key[0:8]) <= height {
			toDelete = append(toDelete, append([]byte(nil), key...))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range toDelete {
		if err := w.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// ConsensusWAL persists the driver's phase progress per height, so a
// restarted node re-enters the round it was in, with its lock and last
// QC, rather than round 0; the driver restarts that round at the propose
// phase.
type ConsensusWAL struct {
	store Store
}

func NewConsensusWAL(store Store) *ConsensusWAL {
	return &ConsensusWAL{store: store}
}

func consensusKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

func (w *ConsensusWAL) Append(record axontypes.ConsensusWALRecord) error {
	enc, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("%w: encode consensus wal record: %v", axontypes.ErrDecode, err)
	}
	return w.store.Put(consensusKey(record.Height), enc)
}

func (w *ConsensusWAL) Load(height uint64) (axontypes.ConsensusWALRecord, bool, error) {
	var record axontypes.ConsensusWALRecord
	raw, ok, err := w.store.Get(consensusKey(height))
	if err != nil || !ok {
		return record, ok, err
	}
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return record, false, fmt.Errorf("%w: decode consensus wal record: %v", axontypes.ErrDecode, err)
	}
	return record, true, nil
}

func (w *ConsensusWAL) Prune(height uint64) error {
	var toDelete [][]byte
	err := w.store.Iterate(nil, func(key, _ []byte) bool {
		if len(key) == 8 && binary.BigEndian.Uint64(key) <= height {
			toDelete = append(toDelete, append([]byte(nil), key...))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range toDelete {
		if err := w.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
