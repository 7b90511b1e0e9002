// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX Front End: Branch Target Buffer - Go Reference Model
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// The BTB answers one question for the PC generation stage every cycle: "does the fetch
// block at this PC contain a branch, and if so, where does it go?"
//
// Much smaller than a TAGE direction predictor:
//   - Direct mapped, one entry per index (no associativity, no LRU)
//   - Each entry: tag + target + 2-bit saturating direction counter
//   - Valid bitmap kept separate from the entry SRAM (same idiom as TAGE)
//
// PORT:
// ─────
// One combined read/update port, matching pcgen.Predictor:
//
//   read   (always_comb): PC → {valid, taken, target}    reads the PRE-update table
//   update (always_ff):   flush_bp  → clear all valid bits
//                         resolved  → allocate or train the resolved branch's entry
//
// A branch resolved this cycle is never visible to this cycle's lookup.
//
// INDEXING:
// ─────────
// Branches can start on any halfword (compressed instructions), so the index drops only
// PC[0]:
//   index = PC[IndexBits:1]
//   tag   = PC[63:IndexBits+1]
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package btb

import (
	"math/bits"

	"github.com/juju/errors"

	"suprax/proto/pcgen"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   parameter NR_ENTRIES    = 64;
//   parameter COUNTER_WIDTH = 2;
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

const (
	// DefaultEntries: Table size when none is configured.
	DefaultEntries = 64

	// MaxEntries: Upper bound on table size (16-bit index).
	MaxEntries = 1 << 16

	// CounterWidth: 2-bit saturating direction counter.
	CounterWidth = 2

	// MaxCounter: Strongly taken.
	MaxCounter = (1 << CounterWidth) - 1 // 3

	// TakenThreshold: counter >= 2 predicts taken.
	TakenThreshold = 1 << (CounterWidth - 1) // 2

	// WeakTaken / WeakNotTaken: Allocation values.
	// New entries start one step from the threshold in the observed direction.
	WeakTaken    = TakenThreshold     // 2
	WeakNotTaken = TakenThreshold - 1 // 1

	// InstrAlignShift: PC[0] never distinguishes branches.
	InstrAlignShift = 1
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ENTRY AND TABLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   typedef struct packed {
//     logic [TAG_W-1:0] tag;
//     logic [63:0]      target_address;
//     logic [1:0]       counter;
//   } btb_entry_t;
//
//   btb_entry_t  entries   [NR_ENTRIES];
//   logic [63:0] valid_bits[NR_ENTRIES/64];
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Entry struct {
	Tag     uint64 // PC bits above the index
	Target  uint64 // Last resolved target
	Counter uint8  // Saturating direction counter (2 bits used)
}

// Stats is simulation-only bookkeeping. NOT synthesized.
type Stats struct {
	Lookups     uint64
	Hits        uint64
	Updates     uint64
	Allocations uint64
	Flushes     uint64
}

// HitRate returns Hits/Lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

type BTB struct {
	Entries   []Entry
	ValidBits []uint64

	indexBits uint
	indexMask uint64
	stats     Stats
}

// New builds an empty BTB with the given entry count (a power of two).
func New(entries int) (*BTB, error) {
	if entries <= 0 || entries > MaxEntries || entries&(entries-1) != 0 {
		return nil, errors.NotValidf("btb size %d (must be a power of two in [1, %d])", entries, MaxEntries)
	}
	words := (entries + 63) >> 6
	return &BTB{
		Entries:   make([]Entry, entries),
		ValidBits: make([]uint64, words),
		indexBits: uint(bits.TrailingZeros(uint(entries))),
		indexMask: uint64(entries - 1),
	}, nil
}

// MustNew is New for sizes known to be valid.
func MustNew(entries int) *BTB {
	b, err := New(entries)
	if err != nil {
		panic(err)
	}
	return b
}

// Size returns the entry count.
func (b *BTB) Size() int { return len(b.Entries) }

func (b *BTB) Stats() Stats { return b.stats }

// index / tag split the PC.
// Wire: index = pc[IDX_W:1]; tag = pc[63:IDX_W+1]
func (b *BTB) index(pc uint64) uint64 {
	return (pc >> InstrAlignShift) & b.indexMask
}

func (b *BTB) tag(pc uint64) uint64 {
	return pc >> (InstrAlignShift + b.indexBits)
}

func (b *BTB) valid(idx uint64) bool {
	return (b.ValidBits[idx>>6]>>(idx&63))&1 != 0
}

func (b *BTB) setValid(idx uint64) {
	b.ValidBits[idx>>6] |= 1 << (idx & 63)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LOOKUP
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Lookup is the read half of the port, with no side effects beyond stats.
//
// SystemVerilog:
//   always_comb begin
//     idx = pc[IDX_W:1];
//     hit = valid_bits[idx] && entries[idx].tag == pc[63:IDX_W+1];
//     btb_prediction_o.valid          = hit;
//     btb_prediction_o.predict_taken  = entries[idx].counter[1];
//     btb_prediction_o.predict_address = entries[idx].target_address;
//   end
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (b *BTB) Lookup(pc uint64) pcgen.BranchPrediction {
	b.stats.Lookups++

	idx := b.index(pc)
	entry := &b.Entries[idx]

	// Wire: hit = valid & ((tag ^ entry.tag) == 0)
	if !b.valid(idx) || entry.Tag^b.tag(pc) != 0 {
		return pcgen.BranchPrediction{PredictPC: pc}
	}

	b.stats.Hits++
	return pcgen.BranchPrediction{
		Valid:          true,
		PredictTaken:   entry.Counter >= TakenThreshold,
		PredictAddress: entry.Target,
		PredictPC:      pc,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// UPDATE
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Update is the write half. Flush wins over training in the same cycle: a flush means the
// whole table is untrustworthy, including the entry being trained.
//
// ALLOCATE vs TRAIN:
//   Miss (invalid or tag mismatch): overwrite the slot, counter = weak in resolved direction
//   Hit:                             counter ±1 (saturating), target overwritten
//
// The target is always refreshed because indirect jumps may change destination.
//
// SystemVerilog:
//   always_ff @(posedge clk_i) begin
//     if (flush_bp_i) valid_bits <= '0;
//     else if (resolved.valid) begin
//       entries[ridx].target_address <= resolved.target_address;
//       if (!rhit) begin
//         entries[ridx].tag     <= rtag;
//         entries[ridx].counter <= resolved.is_taken ? 2'd2 : 2'd1;
//         valid_bits[ridx]      <= 1'b1;
//       end else
//         entries[ridx].counter <= sat_update(entries[ridx].counter, resolved.is_taken);
//     end
//   end
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (b *BTB) Update(flush bool, resolved pcgen.ResolvedBranch) {
	if flush {
		b.Flush()
		return
	}
	if !resolved.Valid {
		return
	}

	b.stats.Updates++

	idx := b.index(resolved.PC)
	tag := b.tag(resolved.PC)
	entry := &b.Entries[idx]

	entry.Target = resolved.TargetAddress

	if !b.valid(idx) || entry.Tag != tag {
		b.stats.Allocations++
		entry.Tag = tag
		if resolved.IsTaken {
			entry.Counter = WeakTaken
		} else {
			entry.Counter = WeakNotTaken
		}
		b.setValid(idx)
		return
	}

	entry.Counter = saturate(entry.Counter, resolved.IsTaken)
}

// saturate steps a 2-bit counter toward the observed direction.
// Hardware: 2-bit up/down counter with clamp.
func saturate(counter uint8, taken bool) uint8 {
	if taken {
		if counter < MaxCounter {
			counter++
		}
		return counter
	}
	if counter > 0 {
		counter--
	}
	return counter
}

// Predict implements pcgen.Predictor: read first, then update.
func (b *BTB) Predict(port pcgen.PredictorPort) pcgen.BranchPrediction {
	prediction := b.Lookup(port.PC)
	b.Update(port.FlushBP, port.Resolved)
	return prediction
}

// Flush invalidates every entry (word-level clear). Entry contents are left as-is;
// the valid bits alone gate hits.
func (b *BTB) Flush() {
	for w := range b.ValidBits {
		b.ValidBits[w] = 0
	}
	b.stats.Flushes++
}

// Reset flushes the table and clears statistics.
func (b *BTB) Reset() {
	b.Flush()
	b.stats = Stats{}
}

// ValidCount returns the number of valid entries.
func (b *BTB) ValidCount() int {
	n := 0
	for _, w := range b.ValidBits {
		n += bits.OnesCount64(w)
	}
	return n
}

var _ pcgen.Predictor = (*BTB)(nil)
