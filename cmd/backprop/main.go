// Package main provides the backprop CLI.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/backprop/internal/gradcheck"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}

	switch args[0] {
	case "version":
		printVersion(stdout)
		return 0
	case "gradcheck":
		return runGradcheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Backprop - reverse-mode automatic differentiation for Go")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version    Show version and host CPU")
	fmt.Fprintln(w, "  gradcheck  Compare every operation's gradient with finite differences")
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "backprop %s\n", version)

	var features []string
	for _, f := range []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			features = append(features, f.String())
		}
	}
	fmt.Fprintf(w, "CPU: %s (%d physical cores, %d threads)\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	fmt.Fprintf(w, "Features: %s\n", strings.Join(features, " "))
}

func runGradcheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gradcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seed := fs.Uint64("seed", 1, "Seed for the random inputs")
	step := fs.Float64("step", 1e-6, "Finite-difference step")
	tol := fs.Float64("tol", 1e-5, "Accepted absolute or relative error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := gradcheck.Config{Step: *step, Tolerance: *tol}
	return checkCases(gradcheck.Suite(rand.New(rand.NewPCG(*seed, *seed))), cfg, stdout, stderr)
}

// checkCases prints one table row per case and reports cases that could not
// be evaluated on stderr after the table.
func checkCases(cases []gradcheck.Case, cfg gradcheck.Config, stdout, stderr io.Writer) int {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tSTATUS\tELEMENTS\tMAX ABS ERR\tMAX REL ERR")

	failed := 0
	var errs []string
	for _, c := range cases {
		report, err := c.Run(cfg)
		if err != nil {
			fmt.Fprintf(tw, "%s\tERROR\t-\t-\t-\n", c.Name)
			errs = append(errs, fmt.Sprintf("%s: %v", c.Name, err))
			failed++
			continue
		}
		status := "ok"
		if !report.Passed {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3g\t%.3g\n",
			c.Name, status, len(report.Results), report.MaxAbsErr, report.MaxRelErr)
	}
	tw.Flush()

	for _, msg := range errs {
		fmt.Fprintf(stderr, "gradcheck: %s\n", msg)
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "gradcheck: %d case(s) failed\n", failed)
		return 1
	}
	fmt.Fprintln(stdout, "gradcheck: all cases passed")
	return 0
}
