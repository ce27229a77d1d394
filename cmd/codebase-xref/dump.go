package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DeusData/codebase-xref/internal/config"
	"github.com/DeusData/codebase-xref/internal/descriptor"
	"github.com/DeusData/codebase-xref/internal/gotypes"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
	"github.com/DeusData/codebase-xref/internal/resolve"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Print the node tree of a module with symbols, variants and descriptors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		cfg := config.Load(root)
		tests, _ := cmd.Flags().GetBool("tests")
		only, _ := cmd.Flags().GetString("file")

		ctx, cancel := signalContext()
		defer cancel()

		prog, err := gotypes.Load(ctx, root, gotypes.LoadOptions{
			Tests:     tests,
			BuildTags: cfg.Index.BuildTags,
		})
		if err != nil {
			return err
		}
		locator := moniker.NewPathMapper(prog.Root(), moniker.Options{
			SourceDir: cfg.Monikers.SourceDir,
			OutputDir: cfg.Monikers.OutputDir,
			GOROOT:    prog.GOROOT(),
		})
		d := &dumper{
			out:   cmd.OutOrStdout(),
			prog:  prog,
			descs: descriptor.NewBuilder(cfg.EffectiveScheme(), locator),
		}
		for _, f := range prog.Files() {
			rel, _ := filepath.Rel(prog.Root(), f.File())
			rel = filepath.ToSlash(rel)
			if only != "" && rel != filepath.ToSlash(only) {
				continue
			}
			fmt.Fprintf(d.out, "== %s\n", rel)
			d.file(f)
		}
		return nil
	},
}

type dumper struct {
	out   io.Writer
	prog  *gotypes.Program
	descs *descriptor.Builder
	depth int
}

func (d *dumper) file(f oracle.Node) {
	oracle.Walk(f, func(n oracle.Node) bool {
		d.node(n)
		d.depth++
		return true
	}, func(oracle.Node) {
		d.depth--
	})
}

func (d *dumper) node(n oracle.Node) {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", d.depth))
	sb.WriteString(n.Kind().String())
	if name := n.Name(); name != "" {
		fmt.Fprintf(&sb, " %s", name)
	}
	fmt.Fprintf(&sb, " %s", n.Range())

	if n.Kind() == oracle.KindIdentifier {
		if sym := d.prog.SymbolAt(n); sym != nil {
			fmt.Fprintf(&sb, " sym=%s variant=%s", sym.Key(), resolve.Classify(d.prog, sym, n).Tag())
		}
		if oracle.IsDefinitionSite(n) {
			fmt.Fprintf(&sb, " def=%q", d.descs.Symbol(n.Parent()).String())
		}
	}
	fmt.Fprintln(d.out, sb.String())
}
