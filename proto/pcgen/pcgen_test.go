package pcgen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX PC Generation Stage - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// TEST PHILOSOPHY:
// ────────────────
// These tests serve dual purposes:
//   1. Functional verification: Ensure Go model behaves correctly
//   2. Hardware specification: Define expected RTL behavior
//
// When you write SystemVerilog, run these same test vectors against RTL.
//
// TEST ORGANIZATION:
// ──────────────────
//   1. SEQUENTIAL ADVANCE    Default rule, alignment, stall
//   2. HALF-FETCH GUARD      Predicted-taken suppressed from PC[1]=1
//   3. PRIORITY ORDERING     Pairwise overrides + exhaustive sweep
//   4. SIDE OUTPUTS          fetch_valid gating, speculation clear
//   5. PC REGISTER           Reset, clock, reset priority
//   6. STAGE TIMING          Predictor keyed on registered PC, multi-cycle sequences
//   7. STATS
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// running returns inputs for a fetch that is enabled and ready with no overrides.
func running(pc uint64) SelectorInputs {
	return SelectorInputs{PC: pc, FetchReady: true, FetchEnable: true}
}

func takenPrediction(target uint64) BranchPrediction {
	return BranchPrediction{Valid: true, PredictTaken: true, PredictAddress: target}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 1. SEQUENTIAL ADVANCE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestSequential_Scenario0x1000(t *testing.T) {
	// WHAT: PC=0x1000, ready, enabled, no overrides
	// WHY: Baseline scenario
	sel := SelectNextPC(running(0x1000))

	if sel.NextPC != 0x1004 {
		t.Errorf("NextPC=%#x, expected 0x1004", sel.NextPC)
	}
	if !sel.FetchValid {
		t.Error("FetchValid should be true")
	}
	if sel.Rule != RuleDefault {
		t.Errorf("Rule=%v, expected default", sel.Rule)
	}
}

func TestSequential_ClearsLowBits(t *testing.T) {
	// WHAT: Sequential advance aligns before adding 4
	// HARDWARE: {npc_q[63:2], 2'b0} + 4
	cases := map[uint64]uint64{
		0x1000: 0x1004,
		0x1001: 0x1004,
		0x1002: 0x1004,
		0x1003: 0x1004,
		0x2002: 0x2004,
	}
	for pc, want := range cases {
		if got := SelectNextPC(running(pc)).NextPC; got != want {
			t.Errorf("pc=%#x: NextPC=%#x, expected %#x", pc, got, want)
		}
	}
}

func TestSequential_MatchesFormula(t *testing.T) {
	// WHAT: next = (pc &^ 3) + 4 across a spread of addresses
	for _, pc := range []uint64{0, 2, 0x7FFF_FFFE, 0x8000_0000, 0xFFFF_FFFF_FFFF_FFF8} {
		want := (pc &^ 0b11) + 4
		if got := SelectNextPC(running(pc)).NextPC; got != want {
			t.Errorf("pc=%#x: NextPC=%#x, expected %#x", pc, got, want)
		}
	}
}

func TestSequential_WrapsAtTopOfAddressSpace(t *testing.T) {
	// WHAT: 64-bit adder wraps, no saturation
	if got := SequentialPC(0xFFFF_FFFF_FFFF_FFFE); got != 0 {
		t.Errorf("SequentialPC wrapped to %#x, expected 0", got)
	}
}

func TestStall_NotReadyHolds(t *testing.T) {
	// WHAT: !ready && enable → hold, repeatedly
	in := running(0x1234)
	in.FetchReady = false

	pc := in.PC
	for i := 0; i < 8; i++ {
		in.PC = pc
		pc = SelectNextPC(in).NextPC
		if pc != 0x1234 {
			t.Fatalf("stall cycle %d: NextPC=%#x, expected hold at 0x1234", i, pc)
		}
	}
}

func TestStall_DisabledHolds(t *testing.T) {
	// WHAT: ready && !enable → hold
	in := running(0x4000)
	in.FetchEnable = false

	if got := SelectNextPC(in).NextPC; got != 0x4000 {
		t.Errorf("NextPC=%#x, expected hold at 0x4000", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 2. HALF-FETCH GUARD
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestHalfFetch_Scenario0x2002(t *testing.T) {
	// WHAT: PC bit1=1 with valid+taken prediction → sequential, not target
	// WHY: Jumping from the upper half could drop the tail of a compressed instruction
	in := running(0x2002)
	in.Prediction = takenPrediction(0x3000)

	sel := SelectNextPC(in)
	if sel.NextPC != 0x2004 {
		t.Errorf("NextPC=%#x, expected sequential 0x2004", sel.NextPC)
	}
	if sel.Rule != RuleDefault {
		t.Errorf("Rule=%v, expected default", sel.Rule)
	}
}

func TestHalfFetch_GuardAcrossAddresses(t *testing.T) {
	// WHAT: For every PC with bit1 set, prediction never wins
	for _, pc := range []uint64{0x2, 0x3, 0x1006, 0x8000_0002, 0xFFFF_FFFF_FFFF_FFFE} {
		in := running(pc)
		in.Prediction = takenPrediction(0xDEAD_0000)
		sel := SelectNextPC(in)
		if sel.NextPC != SequentialPC(pc) {
			t.Errorf("pc=%#x: NextPC=%#x, expected %#x", pc, sel.NextPC, SequentialPC(pc))
		}
	}
}

func TestPredict_TakenFromLowerHalf(t *testing.T) {
	// WHAT: PC bit1=0, valid+taken → target
	in := running(0x2000)
	in.Prediction = takenPrediction(0x3000)

	sel := SelectNextPC(in)
	if sel.NextPC != 0x3000 || sel.Rule != RulePredictTaken {
		t.Errorf("NextPC=%#x rule=%v, expected 0x3000 predict", sel.NextPC, sel.Rule)
	}
}

func TestPredict_RequiresReady(t *testing.T) {
	// WHAT: Not ready → prediction ignored, PC holds
	in := running(0x2000)
	in.FetchReady = false
	in.Prediction = takenPrediction(0x3000)

	if got := SelectNextPC(in).NextPC; got != 0x2000 {
		t.Errorf("NextPC=%#x, expected hold at 0x2000", got)
	}
}

func TestPredict_IgnoresEnable(t *testing.T) {
	// WHAT: Rule 2 does not look at fetch_enable (only ready)
	in := running(0x2000)
	in.FetchEnable = false
	in.Prediction = takenPrediction(0x3000)

	sel := SelectNextPC(in)
	if sel.NextPC != 0x3000 {
		t.Errorf("NextPC=%#x, expected 0x3000", sel.NextPC)
	}
	if sel.FetchValid {
		t.Error("FetchValid must follow enable")
	}
}

func TestPredict_NotTakenOrInvalidIgnored(t *testing.T) {
	in := running(0x2000)
	in.Prediction = BranchPrediction{Valid: true, PredictTaken: false, PredictAddress: 0x3000}
	if got := SelectNextPC(in).NextPC; got != 0x2004 {
		t.Errorf("not-taken: NextPC=%#x, expected 0x2004", got)
	}

	in.Prediction = BranchPrediction{Valid: false, PredictTaken: true, PredictAddress: 0x3000}
	if got := SelectNextPC(in).NextPC; got != 0x2004 {
		t.Errorf("invalid: NextPC=%#x, expected 0x2004", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 3. PRIORITY ORDERING
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Pairwise scenarios first, then an exhaustive sweep of every subset of the six sources
// against an independent reference written as a reverse if-chain.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestPriority_MispredictOverPrediction(t *testing.T) {
	in := running(0x2000)
	in.Prediction = takenPrediction(0x3000)
	in.Resolved = ResolvedBranch{IsMispredict: true, TargetAddress: 0x5000}

	sel := SelectNextPC(in)
	if sel.NextPC != 0x5000 || sel.Rule != RuleMispredict {
		t.Errorf("NextPC=%#x rule=%v, expected 0x5000 mispredict", sel.NextPC, sel.Rule)
	}
}

func TestPriority_MispredictIgnoresReadyAndEnable(t *testing.T) {
	// WHAT: Correction is accepted even while stalled and disabled
	in := SelectorInputs{PC: 0x2000}
	in.Resolved = ResolvedBranch{IsMispredict: true, TargetAddress: 0x5000}

	if got := SelectNextPC(in).NextPC; got != 0x5000 {
		t.Errorf("NextPC=%#x, expected 0x5000", got)
	}
}

func TestPriority_ExceptionOverMispredict(t *testing.T) {
	in := running(0x2000)
	in.Resolved = ResolvedBranch{IsMispredict: true, TargetAddress: 0x5000}
	in.Exception = Exception{Valid: true}
	in.TrapVectorBase = 0x8000_0000

	sel := SelectNextPC(in)
	if sel.NextPC != 0x8000_0000 || sel.Rule != RuleException {
		t.Errorf("NextPC=%#x rule=%v, expected 0x80000000 exception", sel.NextPC, sel.Rule)
	}
}

func TestPriority_EretOverException(t *testing.T) {
	// WHAT: exception + eret same cycle → EPC
	in := running(0x2000)
	in.Exception = Exception{Valid: true}
	in.TrapVectorBase = 0x8000_0000
	in.Eret = true
	in.EPC = 0x4000

	sel := SelectNextPC(in)
	if sel.NextPC != 0x4000 || sel.Rule != RuleExceptionReturn {
		t.Errorf("NextPC=%#x rule=%v, expected 0x4000 eret", sel.NextPC, sel.Rule)
	}
}

func TestPriority_FlushOverEret(t *testing.T) {
	// WHAT: flush + eret same cycle → commit PC + 4
	in := running(0x2000)
	in.Eret = true
	in.EPC = 0x4000
	in.Flush = true
	in.CommitPC = 0x9000

	sel := SelectNextPC(in)
	if sel.NextPC != 0x9004 || sel.Rule != RuleFlush {
		t.Errorf("NextPC=%#x rule=%v, expected 0x9004 flush", sel.NextPC, sel.Rule)
	}
}

func TestPriority_FlushAddsFourUnconditionally(t *testing.T) {
	// WHAT: No alignment is applied to the commit PC
	in := running(0)
	in.Flush = true
	in.CommitPC = 0x9002

	if got := SelectNextPC(in).NextPC; got != 0x9006 {
		t.Errorf("NextPC=%#x, expected 0x9006", got)
	}
}

// referenceNextPC is an independent model of the cascade: check highest priority first.
func referenceNextPC(in SelectorInputs) (uint64, Rule) {
	switch {
	case in.Flush:
		return in.CommitPC + 4, RuleFlush
	case in.Eret:
		return in.EPC, RuleExceptionReturn
	case in.Exception.Valid:
		return in.TrapVectorBase, RuleException
	case in.Resolved.IsMispredict:
		return in.Resolved.TargetAddress, RuleMispredict
	case in.FetchReady && in.Prediction.Valid && in.Prediction.PredictTaken && in.PC&2 == 0:
		return in.Prediction.PredictAddress, RulePredictTaken
	case in.FetchReady && in.FetchEnable:
		return (in.PC &^ 3) + 4, RuleDefault
	default:
		return in.PC, RuleDefault
	}
}

func TestPriority_ExhaustiveSweep(t *testing.T) {
	// WHAT: Every combination of 7 control bits, at both PC alignments
	// WHY: Priority must be deterministic for combinations upstream never produces
	// HARDWARE: 256 vectors, full coverage of the cascade select logic
	const (
		bitReady = 1 << iota
		bitEnable
		bitPredict
		bitMispredict
		bitException
		bitEret
		bitFlush
		bitHalf
		numBits = iota
	)

	for v := 0; v < 1<<numBits; v++ {
		in := SelectorInputs{
			PC:             0x1000,
			FetchReady:     v&bitReady != 0,
			FetchEnable:    v&bitEnable != 0,
			Resolved:       ResolvedBranch{IsMispredict: v&bitMispredict != 0, TargetAddress: 0x5000},
			Exception:      Exception{Valid: v&bitException != 0},
			TrapVectorBase: 0x8000_0000,
			Eret:           v&bitEret != 0,
			EPC:            0x4000,
			Flush:          v&bitFlush != 0,
			CommitPC:       0x9000,
		}
		if v&bitPredict != 0 {
			in.Prediction = takenPrediction(0x3000)
		}
		if v&bitHalf != 0 {
			in.PC = 0x1002
		}

		wantPC, wantRule := referenceNextPC(in)
		sel := SelectNextPC(in)

		if sel.NextPC != wantPC || sel.Rule != wantRule {
			t.Errorf("vector %#03x: NextPC=%#x rule=%v, expected %#x %v",
				v, sel.NextPC, sel.Rule, wantPC, wantRule)
		}
		if sel.FetchValid != in.FetchEnable {
			t.Errorf("vector %#03x: FetchValid=%v, expected %v", v, sel.FetchValid, in.FetchEnable)
		}
		if in.Exception.Valid && sel.Prediction.Valid {
			t.Errorf("vector %#03x: prediction valid during exception", v)
		}
	}
}

func TestPriority_CascadeRowsInRuleOrder(t *testing.T) {
	// WHAT: Row index equals Rule value; reordering the table is caught here
	for i, r := range priorityCascade {
		if int(r.id) != i {
			t.Errorf("row %d holds rule %v", i, r.id)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 4. SIDE OUTPUTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestFetchValid_GatedByEnable(t *testing.T) {
	// WHAT: enable=0 → valid=0 regardless of overrides, while NextPC still moves
	in := SelectorInputs{
		PC:         0x1000,
		FetchReady: true,
		Flush:      true,
		CommitPC:   0x9000,
	}
	sel := SelectNextPC(in)
	if sel.FetchValid {
		t.Error("FetchValid must be false when fetch is disabled")
	}
	if sel.NextPC != 0x9004 {
		t.Errorf("NextPC=%#x, expected 0x9004 (computation unaffected)", sel.NextPC)
	}
}

func TestFetchValid_IgnoresReady(t *testing.T) {
	in := running(0x1000)
	in.FetchReady = false
	if !SelectNextPC(in).FetchValid {
		t.Error("FetchValid should follow enable only")
	}
}

func TestPrediction_PassedThroughRaw(t *testing.T) {
	// WHAT: Without an exception the annotation is the verdict, untouched
	// WHY: Decode needs the guess even when a higher rule redirected fetch
	in := running(0x1002)
	in.Prediction = BranchPrediction{Valid: true, PredictTaken: true, PredictAddress: 0x3000, PredictPC: 0x1002}
	in.Resolved = ResolvedBranch{IsMispredict: true, TargetAddress: 0x5000}

	sel := SelectNextPC(in)
	if diff := cmp.Diff(in.Prediction, sel.Prediction); diff != "" {
		t.Errorf("prediction mismatch (-want +got):\n%s", diff)
	}
}

func TestPrediction_ClearedByException(t *testing.T) {
	// WHAT: Exception forces valid=0, other fields kept
	in := running(0x1000)
	in.Prediction = BranchPrediction{Valid: true, PredictTaken: true, PredictAddress: 0x3000, PredictPC: 0x1000}
	in.Exception = Exception{Valid: true, Cause: 2}
	in.Eret = true // eret wins the PC but the clear still applies

	sel := SelectNextPC(in)
	want := in.Prediction
	want.Valid = false
	if diff := cmp.Diff(want, sel.Prediction); diff != "" {
		t.Errorf("prediction mismatch (-want +got):\n%s", diff)
	}
}

func TestRule_String(t *testing.T) {
	if RuleFlush.String() != "flush" || RuleDefault.String() != "default" {
		t.Errorf("unexpected names %q %q", RuleFlush, RuleDefault)
	}
	if Rule(200).String() != "unknown" {
		t.Errorf("out of range rule named %q", Rule(200))
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 5. PC REGISTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestRegister_BootValue(t *testing.T) {
	r := NewPCRegister(0x8000_0000)
	if r.Q() != 0x8000_0000 {
		t.Errorf("Q=%#x, expected boot address", r.Q())
	}
}

func TestRegister_ClockAndReset(t *testing.T) {
	r := NewPCRegister(0x100)
	r.Clock(0x200)
	if r.Q() != 0x200 {
		t.Errorf("Q=%#x after clock, expected 0x200", r.Q())
	}
	r.Reset(0x100)
	if r.Q() != 0x100 {
		t.Errorf("Q=%#x after reset, expected 0x100", r.Q())
	}
}
