package axontypes

// TimerRatios are the four phase-timeout ratios applied to an epoch's
// block interval to compute each phase's deadline (spec §4.1, §5),
// expressed as parts-per-10000 rather than float64: RLP has no float
// encoding, and fixed-point keeps the deadline computation exact across
// every node instead of depending on matching floating-point rounding.
type TimerRatios struct {
	Propose   uint32
	Prevote   uint32
	Precommit uint32
	Brake     uint32
}

// RatioScale is the fixed-point denominator TimerRatios values are
// expressed against (e.g. Propose: 2500 means 0.25 of the interval).
const RatioScale = 10000

// Metadata describes one epoch: the verifier list, block interval and
// timer ratios shared by every height in [StartHeight, next epoch's
// StartHeight). Metadata is appended-only.
type Metadata struct {
	Epoch       uint64
	StartHeight uint64
	Interval    uint64 // milliseconds
	Ratios      TimerRatios
	Verifiers   AuthorityList
}

// Contains reports whether height falls within this epoch, given the
// start height of the *next* epoch (or 0 if this is the newest epoch).
func (m Metadata) Contains(height, nextStart uint64) bool {
	if height < m.StartHeight {
		return false
	}
	if nextStart == 0 {
		return true
	}
	return height < nextStart
}

// RichStatus is the status message published after each commit, and the
// synthetic bootstrap message the adapter injects at genesis.
type RichStatus struct {
	Height     uint64
	Interval   uint64
	Ratios     TimerRatios
	Verifiers  AuthorityList
}
