// Command axond is the axon-core node: it loads configuration, opens the
// block store and write-ahead logs, wires the executor/adapter/driver
// stack together, and runs the BFT driver until asked to stop. The
// startup sequence (process hygiene, data-dir locking, glog-style
// logging, signal handling, periodic stats) mirrors
// cmd/equa-beacon-engine/main.go's own main, generalized from a single
// beacon-engine process onto the full axon-core stack.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/axonium/axon-core/adapter"
	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/bftdriver"
	"github.com/axonium/axon-core/config"
	"github.com/axonium/axon-core/consensuswal"
	"github.com/axonium/axon-core/executor"
	"github.com/axonium/axon-core/feeallocator"
	"github.com/axonium/axon-core/nodelog"
	"github.com/axonium/axon-core/store"
	"github.com/axonium/axon-core/syscontract"
	"github.com/axonium/axon-core/wireformat"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"go.uber.org/automaxprocs/maxprocs"
)

var configPath = flag.String("config", "axond.yaml", "Path to the node configuration file")

func main() {
	flag.Parse()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {})); err != nil {
		// Non-fatal: GOMAXPROCS just stays at its default.
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Crit("axond: load config", "err", err)
	}

	closeLog := nodelog.Setup(nodelog.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closeLog()

	log.Info("axond: starting", "chainId", cfg.ChainID, "dataDir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		log.Crit("axond: create data dir", "err", err)
	}
	lock := flock.New(filepath.Join(cfg.DataDir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		log.Crit("axond: another axond instance already owns this data dir", "dataDir", cfg.DataDir, "err", err)
	}
	defer lock.Unlock()

	validators, err := cfg.AuthorityList()
	if err != nil {
		log.Crit("axond: build genesis authority list", "err", err)
	}
	genesis := axontypes.Metadata{
		Epoch:       0,
		StartHeight: 1,
		Interval:    cfg.IntervalMillis,
		Ratios:      cfg.Ratios(),
		Verifiers:   validators,
	}

	blocks, err := store.Open(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		log.Crit("axond: open block store", "err", err)
	}
	defer blocks.Close()

	walStore, err := consensuswal.OpenLevelDBStore(filepath.Join(cfg.DataDir, "wal"))
	if err != nil {
		log.Crit("axond: open WAL store", "err", err)
	}
	defer walStore.Close()
	txWAL := consensuswal.NewSignedTxWAL(walStore)
	consWAL := consensuswal.NewConsensusWAL(walStore)

	statusAgent := consensuswal.NewStatusAgent(adapter.Bootstrap(genesis))
	var stateRoot common.Hash
	if height, ok, err := blocks.LatestHeight(); err != nil {
		log.Crit("axond: read latest committed height", "err", err)
	} else if ok {
		statusAgent.Update(axontypes.RichStatus{Height: height + 1, Interval: genesis.Interval, Ratios: genesis.Ratios, Verifiers: genesis.Verifiers})
		if block, ok, err := blocks.GetBlockByHeight(height); err == nil && ok {
			stateRoot = block.Header.StateRoot
		}
	}

	stateDB, err := rawdb.NewLevelDBDatabase(filepath.Join(cfg.DataDir, "state"), 256, 256, "axon/state/", false)
	if err != nil {
		log.Crit("axond: open state db", "err", err)
	}
	defer stateDB.Close()
	codeDB, err := rawdb.NewLevelDBDatabase(filepath.Join(cfg.DataDir, "code"), 256, 256, "axon/code/", false)
	if err != nil {
		log.Crit("axond: open code db", "err", err)
	}
	defer codeDB.Close()
	backend, err := worldstate.OpenMPTBackend(stateDB, codeDB, stateRoot)
	if err != nil {
		log.Crit("axond: open world state backend", "err", err)
	}

	metadataIndex := adapter.NewMetadataIndex(genesis)

	metadataContract := syscontract.NewMetadataContract(epochChecker{metadataIndex})
	metadataContract.SetOnUpdate(metadataIndex.Append)
	dispatcher := syscontract.NewDispatcher(metadataContract)

	allocator := feeallocator.NewCell(feeallocator.ProposerTakesAll{})
	exec := executor.New(cfg.ChainID, dispatcher, allocator)

	mempool := adapter.NewInMemoryMempool()
	network := loopbackNetwork{}

	signerKey, err := loadOrCreateNodeKey(filepath.Join(cfg.DataDir, "nodekey"))
	if err != nil {
		log.Crit("axond: load node key", "err", err)
	}
	signer := bftdriver.NewLocalSigner(signerKey)

	encoder := messageEncoder{}
	ad := adapter.New(cfg.ChainID, backend, exec, mempool, network, encoder, blocks, txWAL, consWAL, statusAgent, metadataIndex, nil)

	builder := adapter.NewProposalBuilder(backend, exec, func() uint64 { return uint64(time.Now().Unix()) })

	driver := bftdriver.New(ad, signer, consWAL, builder, statusAgent.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go driver.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sigCh:
			log.Info("axond: received shutdown signal")
			cancel()
			return
		case <-statsTicker.C:
			st := driver.Status()
			log.Info("axond: status", "height", st.Height, "round", st.Round, "phase", st.Phase)
		}
	}
}

// epochChecker satisfies syscontract.ValidatorChecker directly off the
// epoch index, avoiding a construction-order cycle between the
// dispatcher (needed by the executor, needed by the adapter) and the
// adapter itself.
type epochChecker struct {
	index *adapter.MetadataIndex
}

func (c epochChecker) IsValidator(blockNumber uint64, addr common.Address) bool {
	epoch, ok := c.index.EpochFor(blockNumber)
	if !ok {
		return false
	}
	return epoch.Verifiers.Contains(addr)
}

// messageEncoder implements adapter.Encoder over wireformat's codec.
type messageEncoder struct{}

func (messageEncoder) Encode(msg axontypes.ConsensusMessage) ([]byte, error) {
	return wireformat.EncodeMessage(msg)
}
