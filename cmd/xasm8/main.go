// xasm8 assembles 6502, Z80 and 6809 sources written in the FLEX or
// SCMASM dialect into binary, Intel HEX or S-record output.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/xyproto/env/v2"

	"github.com/retroasm/xasm8/assembler"
	"github.com/retroasm/xasm8/cpu"
	"github.com/retroasm/xasm8/output"
)

var (
	errColor  = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
)

func main() {
	var (
		cpuName = flag.String("cpu", env.Str("XASM8_CPU", "6502"), "target CPU family (6502, z80, 6809)")
		dialect = flag.String("dialect", env.Str("XASM8_DIALECT", "flex"), "directive dialect (flex, scmasm)")
		format  = flag.String("format", env.Str("XASM8_FORMAT", "bin"), "output format (bin, hex, srec)")
		outName = flag.String("o", "", "output file (single input only)")
		origin  = flag.Uint("org", 0, "initial program counter")
		include = flag.String("I", env.Str("XASM8_INCLUDE", ""), "include search path (colon separated)")
		cfgPath = flag.String("config", "", "YAML configuration file")
		listing = flag.Bool("listing", false, "print a listing to stdout")
		symbols = flag.Bool("symbols", false, "print the symbol map to stdout")
	)
	flag.Parse()

	opts := assembler.Options{Origin: uint16(*origin)}
	outFormat := output.Binary
	sources := flag.Args()

	if *cfgPath != "" {
		cfg, err := assembler.LoadConfig(*cfgPath)
		if err != nil {
			fail("%v", err)
		}
		opts, err = cfg.Options()
		if err != nil {
			fail("%v", err)
		}
		outFormat, err = output.ParseFormat(cfg.Format)
		if err != nil {
			fail("%v", err)
		}
		if len(sources) == 0 {
			sources = cfg.Sources
		}
		if *outName == "" {
			*outName = cfg.Output
		}
		if cfg.Listing {
			*listing = true
		}
	} else {
		family, err := cpu.ParseFamily(*cpuName)
		if err != nil {
			fail("%v", err)
		}
		opts.Family = family
		opts.Dialect, err = assembler.ParseDialect(*dialect)
		if err != nil {
			fail("%v", err)
		}
		outFormat, err = output.ParseFormat(*format)
		if err != nil {
			fail("%v", err)
		}
		if *include != "" {
			opts.IncludeDirs = strings.Split(*include, ":")
		}
	}

	if len(sources) == 0 {
		fail("no input files")
	}
	if *outName != "" && len(sources) > 1 {
		fail("-o cannot be combined with multiple inputs")
	}

	results, batchErr := assembler.AssembleBatch(context.Background(), opts, sources)

	failed := false
	for _, res := range results {
		if res.Program != nil {
			report(res.Program.Diagnostics)
			if res.Program.ErrorCount() > 0 {
				failed = true
			}
		}
		if res.Err != nil {
			failed = true
			continue
		}
		if res.Program == nil {
			failed = true
			continue
		}

		if *listing || res.Program.Listing {
			if err := output.WriteListing(os.Stdout, res.Program); err != nil {
				fail("%v", err)
			}
		}
		if *symbols {
			if err := output.WriteSymbols(os.Stdout, res.Program); err != nil {
				fail("%v", err)
			}
		}
		if res.Program.ErrorCount() > 0 {
			continue
		}
		name := outputName(res.Path, *outName, res.Program.OutputFile, outFormat)
		if err := writeProgram(name, outFormat, res.Program); err != nil {
			fail("%v", err)
		}
	}
	if batchErr != nil && len(results) == 0 {
		fail("%v", batchErr)
	}
	if failed {
		os.Exit(1)
	}
}

func report(diags []assembler.Diagnostic) {
	for _, d := range diags {
		switch d.Severity {
		case assembler.Warning:
			warnColor.Fprintln(os.Stderr, d)
		default:
			errColor.Fprintln(os.Stderr, d)
		}
	}
}

// outputName picks the output path: the -o flag wins, then a .TF
// directive in the source, then the input name with the format's
// extension.
func outputName(input, flagName, directiveName string, f output.Format) string {
	if flagName != "" {
		return flagName
	}
	if directiveName != "" {
		return directiveName
	}
	ext := map[output.Format]string{
		output.Binary:   ".bin",
		output.IntelHex: ".hex",
		output.SRecord:  ".s19",
	}[f]
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func writeProgram(name string, f output.Format, p *assembler.Program) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return output.Write(file, f, p)
}

func fail(format string, args ...any) {
	errColor.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
