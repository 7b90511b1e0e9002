// Package frontend clocks a PC generation stage with the akita event engine.
//
// The stage itself is a pure cycle model (see proto/pcgen). This package supplies the
// clock: a TickingComponent that pulls one input record per tick from a Source, steps the
// stage, and records what it drove. The component stops ticking when the Source runs dry,
// which lets the serial engine drain and Run return.
package frontend

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/sarchlab/akita/v4/sim"

	"suprax/proto/pcgen"
)

var logger = loggo.GetLogger("pcgen.frontend")

// Config holds the harness parameters.
type Config struct {
	Name        string
	Freq        sim.Freq
	BootAddress uint64
}

// DefaultConfig returns a 1 GHz harness booting at address zero.
func DefaultConfig() Config {
	return Config{
		Name: "PCGen",
		Freq: 1 * sim.GHz,
	}
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.NotValidf("empty component name")
	}
	if c.Freq <= 0 {
		return errors.NotValidf("frequency %v", c.Freq)
	}
	return nil
}

// Source yields one cycle of stage inputs per call. ok=false ends the run.
type Source interface {
	Next() (in pcgen.Inputs, ok bool)
}

// SliceSource replays a fixed list of inputs.
type SliceSource struct {
	inputs []pcgen.Inputs
	pos    int
}

func NewSliceSource(inputs []pcgen.Inputs) *SliceSource {
	return &SliceSource{inputs: inputs}
}

func (s *SliceSource) Next() (pcgen.Inputs, bool) {
	if s.pos >= len(s.inputs) {
		return pcgen.Inputs{}, false
	}
	in := s.inputs[s.pos]
	s.pos++
	return in, true
}

// TraceEntry is one simulated clock.
type TraceEntry struct {
	Cycle   uint64
	Inputs  pcgen.Inputs
	Outputs pcgen.Outputs
}

// Comp is the ticking wrapper around a Stage.
type Comp struct {
	*sim.TickingComponent

	engine sim.Engine
	stage  *pcgen.Stage
	source Source
	cycle  uint64
	trace  []TraceEntry
}

// Tick steps the stage once. Returning false parks the component until something calls
// TickLater again.
func (c *Comp) Tick() bool {
	in, ok := c.source.Next()
	if !ok {
		return false
	}

	out := c.stage.Cycle(in)
	c.trace = append(c.trace, TraceEntry{Cycle: c.cycle, Inputs: in, Outputs: out})

	if logger.IsTraceEnabled() {
		logger.Tracef("%s cycle %d: fetch=%#x valid=%v next=%#x rule=%v",
			c.Name(), c.cycle, out.FetchAddress, out.FetchValid, out.NextPC, out.Rule)
	}
	if out.Rule != pcgen.RuleDefault {
		logger.Debugf("%s cycle %d: %v redirect %#x -> %#x",
			c.Name(), c.cycle, out.Rule, out.FetchAddress, out.NextPC)
	}
	if !in.ResetN {
		logger.Debugf("%s cycle %d: reset, next fetch at %#x", c.Name(), c.cycle, c.stage.PC())
	}

	c.cycle++
	return true
}

// Trace returns the recorded cycles.
func (c *Comp) Trace() []TraceEntry { return c.trace }

// Engine returns the engine the component schedules its ticks on.
func (c *Comp) Engine() sim.Engine { return c.engine }

// Stage exposes the wrapped stage (for stats).
func (c *Comp) Stage() *pcgen.Stage { return c.stage }

// Builder creates Comps in the akita builder style.
type Builder struct {
	engine    sim.Engine
	freq      sim.Freq
	boot      uint64
	predictor pcgen.Predictor
}

// MakeBuilder returns a builder for a 1 GHz component booting at address zero.
func MakeBuilder() Builder {
	return Builder{freq: 1 * sim.GHz}
}

func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

func (b Builder) WithBootAddress(boot uint64) Builder {
	b.boot = boot
	return b
}

// WithPredictor sets the BTB. nil, or a nil pointer, means no prediction.
func (b Builder) WithPredictor(p pcgen.Predictor) Builder {
	b.predictor = p
	return b
}

// Build creates the component. Without WithEngine it gets its own serial engine, reachable
// through Engine.
func (b Builder) Build(name string, source Source) *Comp {
	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}
	c := &Comp{
		engine: engine,
		stage:  pcgen.NewStage(pcgen.Config{BootAddress: b.boot}, b.predictor),
		source: source,
	}
	c.TickingComponent = sim.NewTickingComponent(name, engine, b.freq, c)
	return c
}

// Result is what a run produced.
type Result struct {
	Trace []TraceEntry
	Stats pcgen.Stats
}

// Run builds a fresh serial engine and stage, drives every input from source through the
// stage, and returns the trace.
func Run(cfg Config, predictor pcgen.Predictor, source Source) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Annotate(err, "frontend config")
	}
	if source == nil {
		return Result{}, errors.NotValidf("nil source")
	}

	engine := sim.NewSerialEngine()
	comp := MakeBuilder().
		WithEngine(engine).
		WithFreq(cfg.Freq).
		WithBootAddress(cfg.BootAddress).
		WithPredictor(predictor).
		Build(cfg.Name, source)

	logger.Infof("%s: starting at %#x, %v", cfg.Name, cfg.BootAddress, cfg.Freq)

	comp.TickLater()
	if err := engine.Run(); err != nil {
		return Result{}, errors.Annotatef(err, "running %s", cfg.Name)
	}

	stats := comp.Stage().Stats()
	logger.Infof("%s: finished after %d cycles, %d redirects", cfg.Name, stats.Cycles, stats.Redirects)

	return Result{Trace: comp.Trace(), Stats: stats}, nil
}
