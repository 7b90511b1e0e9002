// Package stimulus loads cycle-by-cycle input programs for the PC generation stage.
//
// A program is a YAML document:
//
//	boot_address: 0x80000000
//	btb_entries: 64
//	cycles:
//	  - {repeat: 2, reset: true}
//	  - {repeat: 4}
//	  - {resolve: {pc: 0x80000008, target: 0x80000100, taken: true, mispredict: true}}
//	  - {exception: {cause: 2}, trap_vector_base: 0x80001000}
//
// Every record is one clock (or `repeat` clocks). Unset fields are deasserted, except
// fetch_enable and fetch_ready which default to asserted, and reset which defaults to
// released.
package stimulus

import (
	"bytes"
	"io"
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"suprax/proto/pcgen"
)

// MaxCycles bounds the expanded length of a program.
const MaxCycles = 1 << 24

type Program struct {
	BootAddress uint64   `yaml:"boot_address"`
	BTBEntries  int      `yaml:"btb_entries"`
	Cycles      []Record `yaml:"cycles"`
}

type Record struct {
	Repeat         int              `yaml:"repeat"`
	Reset          bool             `yaml:"reset"`
	FetchEnable    *bool            `yaml:"fetch_enable"`
	FetchReady     *bool            `yaml:"fetch_ready"`
	Flush          bool             `yaml:"flush"`
	FlushBP        bool             `yaml:"flush_bp"`
	Eret           bool             `yaml:"eret"`
	EPC            uint64           `yaml:"epc"`
	TrapVectorBase uint64           `yaml:"trap_vector_base"`
	CommitPC       uint64           `yaml:"pc_commit"`
	Exception      *ExceptionRecord `yaml:"exception"`
	Resolve        *ResolveRecord   `yaml:"resolve"`
}

// ExceptionRecord asserts ex_i.valid for the cycle.
type ExceptionRecord struct {
	Cause uint64 `yaml:"cause"`
	Tval  uint64 `yaml:"tval"`
}

// ResolveRecord asserts resolved_branch_i.valid for the cycle.
type ResolveRecord struct {
	PC         uint64 `yaml:"pc"`
	Target     uint64 `yaml:"target"`
	Taken      bool   `yaml:"taken"`
	Mispredict bool   `yaml:"mispredict"`
}

// Load decodes and validates a program. Unknown keys are rejected.
func Load(r io.Reader) (*Program, error) {
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)

	var p Program
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return nil, errors.NotValidf("empty stimulus")
		}
		return nil, errors.Annotate(err, "decoding stimulus")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &p, nil
}

// LoadFile reads a program from disk.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", path)
	}
	p, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Annotatef(err, "loading %s", path)
	}
	return p, nil
}

// Validate checks the header and bounds the expanded length by MaxCycles.
func (p *Program) Validate() error {
	if p.BTBEntries < 0 {
		return errors.NotValidf("btb_entries %d", p.BTBEntries)
	}
	total := 0
	for i, rec := range p.Cycles {
		if rec.Repeat < 0 {
			return errors.NotValidf("cycle record %d: repeat %d", i, rec.Repeat)
		}
		// Compare before adding so a huge repeat cannot wrap total.
		if rec.count() > MaxCycles-total {
			return errors.NotValidf("cycle record %d: program longer than %d cycles", i, MaxCycles)
		}
		total += rec.count()
	}
	return nil
}

// Len returns the expanded cycle count.
func (p *Program) Len() int {
	n := 0
	for _, rec := range p.Cycles {
		n += rec.count()
	}
	return n
}

// Inputs expands every record into per-cycle stage inputs.
func (p *Program) Inputs() []pcgen.Inputs {
	out := make([]pcgen.Inputs, 0, p.Len())
	for _, rec := range p.Cycles {
		in := rec.Inputs()
		for n := rec.count(); n > 0; n-- {
			out = append(out, in)
		}
	}
	return out
}

// Cursor returns a fresh iterator over the expanded program.
func (p *Program) Cursor() *Cursor {
	return &Cursor{records: p.Cycles}
}

func (r Record) count() int {
	if r.Repeat == 0 {
		return 1
	}
	return r.Repeat
}

// Inputs converts one record to the stage's signal bundle.
func (r Record) Inputs() pcgen.Inputs {
	in := pcgen.Inputs{
		ResetN:         !r.Reset,
		Flush:          r.Flush,
		FlushBP:        r.FlushBP,
		FetchEnable:    r.FetchEnable == nil || *r.FetchEnable,
		FetchReady:     r.FetchReady == nil || *r.FetchReady,
		CommitPC:       r.CommitPC,
		EPC:            r.EPC,
		Eret:           r.Eret,
		TrapVectorBase: r.TrapVectorBase,
	}
	if r.Exception != nil {
		in.Exception = pcgen.Exception{Valid: true, Cause: r.Exception.Cause, Tval: r.Exception.Tval}
	}
	if r.Resolve != nil {
		in.Resolved = pcgen.ResolvedBranch{
			Valid:         true,
			PC:            r.Resolve.PC,
			TargetAddress: r.Resolve.Target,
			IsTaken:       r.Resolve.Taken,
			IsMispredict:  r.Resolve.Mispredict,
		}
	}
	return in
}

// Cursor walks a program one cycle at a time without expanding repeats up front.
type Cursor struct {
	records []Record
	rec     int
	left    int
	current pcgen.Inputs
}

func (c *Cursor) Next() (pcgen.Inputs, bool) {
	for c.left == 0 {
		if c.rec >= len(c.records) {
			return pcgen.Inputs{}, false
		}
		r := c.records[c.rec]
		c.rec++
		c.current = r.Inputs()
		c.left = r.count()
	}
	c.left--
	return c.current, true
}
