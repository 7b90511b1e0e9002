package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/k0kubun/pp/v3"
	"github.com/olekukonko/tablewriter"

	"suprax/proto/btb"
	"suprax/proto/frontend"
	"suprax/proto/pcgen"
	"suprax/proto/stimulus"
)

var logger = loggo.GetLogger("pcgen.cmd")

type options struct {
	stimulus string
	logSpec  string
	btbSize  int
	noBTB    bool
	dump     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.stimulus, "stimulus", "", "YAML stimulus program to run")
	flag.StringVar(&opts.logSpec, "log", "<root>=WARNING", "loggo configuration, e.g. pcgen.frontend=DEBUG")
	flag.IntVar(&opts.btbSize, "btb", 0, "BTB entries (0 keeps the program's btb_entries)")
	flag.BoolVar(&opts.noBTB, "no-btb", false, "Run without a BTB (predictions never valid)")
	flag.BoolVar(&opts.dump, "dump", false, "Pretty-print the raw trace instead of the table")
	flag.Parse()

	if opts.stimulus == "" {
		fmt.Fprintln(os.Stderr, "No stimulus provided. Use -stimulus.")
		os.Exit(2)
	}
	if err := loggo.ConfigureLoggers(opts.logSpec); err != nil {
		fmt.Fprintln(os.Stderr, "bad -log:", err)
		os.Exit(2)
	}

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run(opts options, w io.Writer) error {
	prog, err := stimulus.LoadFile(opts.stimulus)
	if err != nil {
		return errors.Trace(err)
	}

	var (
		predictor pcgen.Predictor
		table     *btb.BTB
	)
	if !opts.noBTB {
		size := btbEntries(opts.btbSize, prog.BTBEntries)
		table, err = btb.New(size)
		if err != nil {
			return errors.Annotate(err, "building BTB")
		}
		predictor = table
	}
	logger.Debugf("loaded %s: %d cycles, boot %#x", opts.stimulus, prog.Len(), prog.BootAddress)

	cfg := frontend.DefaultConfig()
	cfg.BootAddress = prog.BootAddress

	res, err := frontend.Run(cfg, predictor, prog.Cursor())
	if err != nil {
		return errors.Trace(err)
	}

	if opts.dump {
		_, err = pp.Fprintln(w, res.Trace)
		return errors.Trace(err)
	}

	renderTrace(w, res.Trace)
	renderStats(w, res.Stats, table)
	return nil
}

func btbEntries(flagSize, programSize int) int {
	switch {
	case flagSize != 0:
		return flagSize
	case programSize != 0:
		return programSize
	default:
		return btb.DefaultEntries
	}
}

func renderTrace(w io.Writer, trace []frontend.TraceEntry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Cycle", "Fetch", "Valid", "Rule", "Next", "BTB"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, e := range trace {
		out := e.Outputs
		next := fmt.Sprintf("%#x", out.NextPC)
		if !e.Inputs.ResetN {
			next = "reset"
		}
		table.Append([]string{
			fmt.Sprint(e.Cycle),
			fmt.Sprintf("%#x", out.FetchAddress),
			fmt.Sprint(out.FetchValid),
			out.Rule.String(),
			next,
			formatPrediction(out.Prediction),
		})
	}
	table.Render()
}

func formatPrediction(p pcgen.BranchPrediction) string {
	switch {
	case !p.Valid:
		return "-"
	case p.PredictTaken:
		return fmt.Sprintf("T %#x", p.PredictAddress)
	default:
		return "NT"
	}
}

func renderStats(w io.Writer, st pcgen.Stats, table *btb.BTB) {
	fmt.Fprintf(w, "\ncycles %d, resets %d, fetch-valid %d, stalls %d, redirects %d\n",
		st.Cycles, st.Resets, st.FetchValid, st.StallCycles, st.Redirects)
	for r := 0; r < pcgen.NumRules; r++ {
		fmt.Fprintf(w, "  %-10s %d\n", pcgen.Rule(r), st.RuleWins[r])
	}
	if table == nil {
		return
	}
	bs := table.Stats()
	fmt.Fprintf(w, "btb: %d entries, %d valid, %d/%d hits (%.1f%%), %d updates, %d flushes\n",
		table.Size(), table.ValidCount(), bs.Hits, bs.Lookups, 100*bs.HitRate(), bs.Updates, bs.Flushes)
}
