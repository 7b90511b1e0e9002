package pcgen

import "reflect"

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PREDICTOR PORT
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// The branch-target-prediction unit is a collaborator with one combined read/update port:
//
//   read:   PC → verdict for PC                    (combinational, pre-update table)
//   update: FlushBP, Resolved → table write        (at the same clock edge as npc_q)
//
// The stage always presents the REGISTERED PC. An implementation must answer the read from
// the table as it was before this call's update is applied.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// PredictorPort is one cycle of the predictor's read/update port.
type PredictorPort struct {
	FlushBP  bool           // flush_bp_i: invalidate all predictions
	PC       uint64         // npc_q
	Resolved ResolvedBranch // Training input
}

// Predictor answers the read half for port.PC and applies the update half, in that order.
type Predictor interface {
	Predict(port PredictorPort) BranchPrediction
}

// NoPrediction never hits. Used when a stage is built without a BTB.
type NoPrediction struct{}

// Predict echoes the PC with Valid clear and ignores the update half.
func (NoPrediction) Predict(port PredictorPort) BranchPrediction {
	return BranchPrediction{PredictPC: port.PC}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STAGE INTERFACE
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Inputs is one cycle of the stage's signal interface. Clock is implicit: one Cycle call is
// one rising edge.
//
// SystemVerilog equivalent:
//   module pc_gen (
//     input  logic             clk_i,
//     input  logic             rst_ni,
//     input  logic             flush_i,
//     input  logic             flush_bp_i,
//     input  logic             fetch_enable_i,
//     input  logic             if_ready_i,
//     input  resolved_branch_t resolved_branch_i,
//     output logic [63:0]      fetch_address_o,
//     output logic             fetch_valid_o,
//     output branch_predict_t  branch_predict_o,
//     input  logic [63:0]      boot_addr_i,
//     input  logic [63:0]      pc_commit_i,
//     input  logic [63:0]      epc_i,
//     input  logic             eret_i,
//     input  logic [63:0]      trap_vector_base_i,
//     input  exception_t       ex_i
//   );
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Inputs struct {
	ResetN         bool // Active low: false holds the register at the boot address
	Flush          bool
	FlushBP        bool
	FetchEnable    bool
	FetchReady     bool
	Resolved       ResolvedBranch
	CommitPC       uint64
	EPC            uint64
	Eret           bool
	TrapVectorBase uint64
	Exception      Exception
}

// Outputs is what the stage drives during the cycle, all derived from the registered PC.
type Outputs struct {
	FetchAddress uint64           // fetch_address_o = npc_q
	FetchValid   bool             // fetch_valid_o
	Prediction   BranchPrediction // branch_predict_o
	NextPC       uint64           // npc_d (before reset override)
	Rule         Rule             // Winning cascade row
}

// Config is static, elaboration-time configuration.
type Config struct {
	BootAddress uint64 // boot_addr_i
}

// Stats is simulation-only bookkeeping. NOT synthesized.
type Stats struct {
	Cycles      uint64
	Resets      uint64
	FetchValid  uint64
	RuleWins    [NumRules]uint64
	Redirects   uint64 // Cycles where a rule above RuleDefault won
	StallCycles uint64 // Default rule held the PC
}

// Stage owns the PC register and its predictor.
type Stage struct {
	cfg       Config
	reg       *PCRegister
	predictor Predictor
	stats     Stats
}

// NewStage builds a stage holding cfg.BootAddress. A nil predictor, including a typed nil
// pointer such as (*btb.BTB)(nil), is replaced by NoPrediction.
func NewStage(cfg Config, predictor Predictor) *Stage {
	if isNilPredictor(predictor) {
		predictor = NoPrediction{}
	}
	return &Stage{
		cfg:       cfg,
		reg:       NewPCRegister(cfg.BootAddress),
		predictor: predictor,
	}
}

// isNilPredictor reports whether p is nil or an interface wrapping a nil pointer.
func isNilPredictor(p Predictor) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// PC returns the registered value (this cycle's fetch address).
func (s *Stage) PC() uint64 { return s.reg.Q() }

// Config returns the elaboration-time configuration.
func (s *Stage) Config() Config { return s.cfg }

// Stats returns the counters since construction or the last Reset.
func (s *Stage) Stats() Stats { return s.stats }

// Reset asserts reset out of band and clears statistics.
func (s *Stage) Reset() {
	s.reg.Reset(s.cfg.BootAddress)
	s.stats = Stats{}
}

// Cycle advances one clock.
//
// Evaluation order mirrors the hardware timing exactly:
//   1. Snapshot npc_q. Nothing below can observe the new value.
//   2. Query the predictor with the snapshot (read + update port).
//   3. Evaluate the cascade on the snapshot and this cycle's inputs.
//   4. Commit: reset wins over npc_d.
//
// Outputs are computed from the snapshot even during reset, matching a register whose
// output only changes at the edge.
func (s *Stage) Cycle(in Inputs) Outputs {
	pc := s.reg.Q()

	verdict := s.predictor.Predict(PredictorPort{
		FlushBP:  in.FlushBP,
		PC:       pc,
		Resolved: in.Resolved,
	})

	sel := SelectNextPC(SelectorInputs{
		PC:             pc,
		FetchReady:     in.FetchReady,
		FetchEnable:    in.FetchEnable,
		Prediction:     verdict,
		Resolved:       in.Resolved,
		Exception:      in.Exception,
		Eret:           in.Eret,
		EPC:            in.EPC,
		TrapVectorBase: in.TrapVectorBase,
		Flush:          in.Flush,
		CommitPC:       in.CommitPC,
	})

	if in.ResetN {
		s.reg.Clock(sel.NextPC)
	} else {
		s.reg.Reset(s.cfg.BootAddress)
		s.stats.Resets++
	}

	s.count(pc, sel)

	return Outputs{
		FetchAddress: pc,
		FetchValid:   sel.FetchValid,
		Prediction:   sel.Prediction,
		NextPC:       sel.NextPC,
		Rule:         sel.Rule,
	}
}

func (s *Stage) count(pc uint64, sel Selection) {
	s.stats.Cycles++
	s.stats.RuleWins[sel.Rule]++
	if sel.FetchValid {
		s.stats.FetchValid++
	}
	switch {
	case sel.Rule != RuleDefault:
		s.stats.Redirects++
	case sel.NextPC == pc:
		s.stats.StallCycles++
	}
}
