// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX Front End: PC Generation Stage - Go Reference Model
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// The PC generation stage decides, every cycle, which address the fetch unit reads next.
// Six sources compete for that decision:
//
//   1. Sequential fetch           (default: next aligned word)
//   2. Branch prediction          (BTB says this fetch block jumps)
//   3. Misprediction correction   (execute resolved a branch differently)
//   4. Exception                  (trap to the vector base)
//   5. Exception return           (eret back to the saved EPC)
//   6. Pipeline flush             (refetch after a side-effecting commit)
//
// Each later source unconditionally overrides every earlier one that fires in the same
// cycle. The order is fixed and must never drift under refactoring, so it is written down
// once as an ordered rule table (priorityCascade) and the last matching rule wins.
//
// SYSTEMVERILOG MAPPING:
// ──────────────────────
//   Go function       → SV always_comb block or module
//   Go method w/ ptr  → SV always_ff (sequential, modifies state)
//   Go method w/o ptr → SV always_comb (combinational, pure function)
//
// The stage owns exactly one register (npc_q). Everything else is combinational.
//
// TIMING:
// ───────
//   cycle N:   npc_q ──┬──► fetch_address_o
//                      ├──► BTB lookup ──► verdict ──┐
//                      └─────────────────────────────┴──► next-PC cascade ──► npc_d
//   edge N+1:  npc_q <= rst_n ? npc_d : boot_addr
//
// The BTB is keyed on the REGISTERED value, never on npc_d. There is no same-cycle
// read-after-write hazard because nothing reads npc_d except the register input.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package pcgen

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   parameter PC_WIDTH    = 64;
//   parameter FETCH_BYTES = 4;
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

const (
	// PCWidth: Program counter width.
	// Hardware: 64-bit register.
	PCWidth = 64

	// FetchBytes: Bytes delivered per fetch (one 32-bit word).
	FetchBytes = 4

	// FetchAlignMask: Low bits cleared before a sequential advance.
	// Hardware: wire [63:0] aligned = {npc_q[63:2], 2'b0};
	FetchAlignMask = FetchBytes - 1 // 0b11

	// HalfFetchBit: Set when fetch starts in the upper half of a word.
	// Such a fetch may still owe the tail of a compressed instruction that
	// began in the previous word, so a predicted jump from here is ignored.
	HalfFetchBit = 1 << 1

	// FlushRefetchOffset: Distance from the commit PC to the refetch PC.
	// Flush-triggering instructions (CSR writes, fences) are never compressed.
	FlushRefetchOffset = 4
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SIGNAL BUNDLES
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   typedef struct packed {
//     logic        valid;
//     logic [63:0] pc;
//     logic [63:0] target_address;
//     logic        is_taken;
//     logic        is_mispredict;
//   } resolved_branch_t;
//
//   typedef struct packed {
//     logic        valid;
//     logic        predict_taken;
//     logic [63:0] predict_address;
//     logic [63:0] predict_pc;
//   } branch_predict_t;
//
//   typedef struct packed {
//     logic [63:0] cause;
//     logic [63:0] tval;
//     logic        valid;
//   } exception_t;
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ResolvedBranch is the verdict from branch resolution. It doubles as the predictor's
// update port, which is why it carries PC and direction as well as the correction.
type ResolvedBranch struct {
	Valid         bool   // A branch resolved this cycle
	PC            uint64 // Address of the resolved branch
	TargetAddress uint64 // Correct next PC for that branch
	IsTaken       bool   // Actual direction
	IsMispredict  bool   // Front end guessed wrong; TargetAddress is authoritative
}

// BranchPrediction is the BTB verdict for the current PC, forwarded with the fetch.
type BranchPrediction struct {
	Valid          bool   // BTB hit
	PredictTaken   bool   // Counter says taken
	PredictAddress uint64 // Predicted target
	PredictPC      uint64 // PC the lookup was keyed on
}

// Exception is the trap request from the commit stage.
// Only Valid steers the PC; Cause and Tval ride along for tracing.
type Exception struct {
	Valid bool
	Cause uint64
	Tval  uint64
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PRIORITY RULES
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Rule identifies which source produced the next PC. Values are ordered by priority:
// a higher Rule always beats a lower one.
//
// A debug-mode entry would sit above RuleFlush. It has no behavior yet and is deliberately
// not defined.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Rule uint8

const (
	RuleDefault         Rule = iota // Sequential advance or stall
	RulePredictTaken                // BTB predicted taken
	RuleMispredict                  // Resolved-branch correction
	RuleException                   // Trap vector
	RuleExceptionReturn             // eret to EPC
	RuleFlush                       // Refetch after commit

	NumRules = int(RuleFlush) + 1
)

var ruleNames = [NumRules]string{
	"default",
	"predict",
	"mispredict",
	"exception",
	"eret",
	"flush",
}

func (r Rule) String() string {
	if int(r) < NumRules {
		return ruleNames[r]
	}
	return "unknown"
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// NEXT-PC SELECTOR
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SelectorInputs holds every wire feeding the cascade. All fields are sampled in the same
// cycle; the selector never sees a mix of old and new values.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type SelectorInputs struct {
	PC             uint64           // npc_q
	FetchReady     bool             // if_ready_i
	FetchEnable    bool             // fetch_enable_i
	Prediction     BranchPrediction // BTB verdict for PC
	Resolved       ResolvedBranch   // resolved_branch_i
	Exception      Exception        // ex_i
	Eret           bool             // eret_i
	EPC            uint64           // epc_i
	TrapVectorBase uint64           // trap_vector_base_i
	Flush          bool             // flush_i
	CommitPC       uint64           // pc_commit_i
}

// Selection is the cascade output.
type Selection struct {
	NextPC     uint64           // npc_d
	FetchValid bool             // fetch_valid_o
	Prediction BranchPrediction // branch_predict_o
	Rule       Rule             // Winning source (trace only, not a hardware wire)
}

// rule is one row of the cascade: a fire condition and the address it drives.
type rule struct {
	id     Rule
	fires  func(in *SelectorInputs) bool
	target func(in *SelectorInputs) uint64
}

// priorityCascade lists the rules lowest priority first. Row order IS the priority.
//
// SystemVerilog equivalent:
//   always_comb begin
//     npc_d = (if_ready_i && fetch_enable_i) ? {npc_q[63:2], 2'b0} + 4 : npc_q;
//     if (if_ready_i && bp.valid && bp.predict_taken && !npc_q[1]) npc_d = bp.predict_address;
//     if (resolved_branch_i.is_mispredict)                           npc_d = resolved_branch_i.target_address;
//     if (ex_i.valid)                                                 npc_d = trap_vector_base_i;
//     if (eret_i)                                                     npc_d = epc_i;
//     if (flush_i)                                                    npc_d = pc_commit_i + 4;
//   end
var priorityCascade = [NumRules]rule{
	{
		id:     RuleDefault,
		fires:  func(in *SelectorInputs) bool { return true },
		target: defaultTarget,
	},
	{
		id: RulePredictTaken,
		fires: func(in *SelectorInputs) bool {
			return in.FetchReady &&
				in.Prediction.Valid &&
				in.Prediction.PredictTaken &&
				in.PC&HalfFetchBit == 0
		},
		target: func(in *SelectorInputs) uint64 { return in.Prediction.PredictAddress },
	},
	{
		id:     RuleMispredict,
		fires:  func(in *SelectorInputs) bool { return in.Resolved.IsMispredict },
		target: func(in *SelectorInputs) uint64 { return in.Resolved.TargetAddress },
	},
	{
		id:     RuleException,
		fires:  func(in *SelectorInputs) bool { return in.Exception.Valid },
		target: func(in *SelectorInputs) uint64 { return in.TrapVectorBase },
	},
	{
		id:     RuleExceptionReturn,
		fires:  func(in *SelectorInputs) bool { return in.Eret },
		target: func(in *SelectorInputs) uint64 { return in.EPC },
	},
	{
		id:     RuleFlush,
		fires:  func(in *SelectorInputs) bool { return in.Flush },
		target: func(in *SelectorInputs) uint64 { return in.CommitPC + FlushRefetchOffset },
	},
}

// SequentialPC returns the next aligned fetch address after pc.
// Hardware: wire [63:0] seq = {pc[63:2], 2'b0} + 64'd4;
func SequentialPC(pc uint64) uint64 {
	return (pc &^ FetchAlignMask) + FetchBytes
}

func defaultTarget(in *SelectorInputs) uint64 {
	if in.FetchReady && in.FetchEnable {
		return SequentialPC(in.PC)
	}
	// Stall: hold
	return in.PC
}

// SelectNextPC evaluates the priority cascade.
//
// Every row is evaluated against the same inputs; no row reads another row's output. The
// last row that fires wins, which in hardware is a chain of 2:1 muxes with the
// highest-priority select closest to the register input.
//
// Side outputs:
//   - FetchValid follows FetchEnable only. It does not depend on which rule won.
//   - Prediction is the raw verdict, except that a pending exception clears Valid:
//     a trapped fetch is never speculative.
//
// Total function: every input combination produces a well-defined Selection.
func SelectNextPC(in SelectorInputs) Selection {
	winner := &priorityCascade[RuleDefault]
	for i := range priorityCascade {
		r := &priorityCascade[i]
		if r.fires(&in) {
			winner = r
		}
	}

	prediction := in.Prediction
	if in.Exception.Valid {
		prediction.Valid = false
	}

	return Selection{
		NextPC:     winner.target(&in),
		FetchValid: in.FetchEnable,
		Prediction: prediction,
		Rule:       winner.id,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PC REGISTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// PCRegister is the stage's only state.
//
// SystemVerilog equivalent:
//   always_ff @(posedge clk_i or negedge rst_ni) begin
//     if (!rst_ni) npc_q <= boot_addr_i;
//     else         npc_q <= npc_d;
//   end
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// PCRegister is npc_q: the stage's single architectural register.
type PCRegister struct {
	q uint64
}

// NewPCRegister returns a register already holding the boot address.
func NewPCRegister(boot uint64) *PCRegister {
	return &PCRegister{q: boot}
}

// Q returns the registered value.
func (r *PCRegister) Q() uint64 { return r.q }

// Clock latches d at the clock edge.
func (r *PCRegister) Clock(d uint64) { r.q = d }

// Reset forces the boot address. Reset outranks any pending d.
func (r *PCRegister) Reset(boot uint64) { r.q = boot }
