package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/woozymasta/ipcareas/internal/simplify"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input             string  `short:"i" long:"input"              description:"Source TopoJSON dataset" default:"data/global_areas.topojson"`
	Output            string  `short:"o" long:"output"             description:"Output path. Overwrites the input if empty"`
	Precision         int     `short:"p" long:"precision"          description:"Number of decimal places kept in coordinates" default:"3"`
	SimplifyTolerance float64 `short:"t" long:"simplify-tolerance" description:"Simplification tolerance in coordinate units, 0 disables" default:"0.001"`
	Format            string  `short:"f" long:"format"             description:"Statistics output format" choice:"text" choice:"json" choice:"yaml" default:"text"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Precision < 0 || opts.SimplifyTolerance < 0 {
		fmt.Fprintln(os.Stderr, "Error: --precision and --simplify-tolerance must not be negative")
		os.Exit(1)
	}

	s := simplify.New(opts.SimplifyTolerance, opts.Precision)
	stats, err := s.SimplifyFile(opts.Input, simplify.FileOptions{
		Output: opts.Output,
		Root:   filepath.Dir(filepath.Dir(filepath.Clean(opts.Input))),
	})
	if err != nil {
		if errors.Is(err, simplify.ErrNoFeatures) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error simplifying dataset: %v\n", err)
		}
		os.Exit(1)
	}

	var out []byte
	switch opts.Format {
	case "json":
		out, err = json.MarshalIndent(stats, "", "  ")
	case "yaml":
		out, err = yaml.Marshal(stats)
	default:
		printText(stats)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling statistics: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func printText(st simplify.Stats) {
	fmt.Printf("Simplified dataset written to %s with precision %d decimal places\n", st.OutputPath, st.Precision)
	if st.SimplifyTolerance > 0 {
		fmt.Printf("Simplification tolerance applied: %g\n", st.SimplifyTolerance)
	}
	fmt.Printf("Size reduced from %d bytes to %d bytes (%.2f%% of original, saved %d bytes)\n",
		st.OriginalSize, st.NewSize, st.SizeRatio*100, st.SavedBytes)
	if st.Unsimplified > 0 {
		fmt.Fprintf(os.Stderr, "%d feature(s) left unsimplified, see %s\n", st.Unsimplified, simplify.ReportPath(st.OutputPath))
	}
}
