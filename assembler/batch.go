package assembler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs one batch input with its assembled program. Program is
// non-nil even for failed runs so diagnostics can be reported.
type Result struct {
	Path    string
	Program *Program
	Err     error
}

// AssembleBatch assembles independent source files on parallel
// workers. Each file gets its own Assembler, so no mutable state is
// shared; the directive and opcode registries are read-only. Results
// keep the input order. The returned error is the first fatal
// assembly error, if any; recoverable errors stay in each program's
// diagnostics.
func AssembleBatch(ctx context.Context, opts Options, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			prog, err := New(opts).AssembleFile(path)
			results[i] = Result{Path: path, Program: prog, Err: err}
			return err
		})
	}
	err := g.Wait()
	return results, err
}
