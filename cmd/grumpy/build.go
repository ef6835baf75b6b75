package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cmcintosh36/grumpy/cache"
	"github.com/cmcintosh36/grumpy/compiler"
	"github.com/cmcintosh36/grumpy/compiler/hash"
	"github.com/cmcintosh36/grumpy/manifest"
	"github.com/cmcintosh36/grumpy/vm"
)

var (
	buildOutput string
	parseHash   bool
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [FILE]",
	Short: "Print the token stream with positions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		path := sourcePath(m, args)
		src, err := readSource(path)
		if err != nil {
			return err
		}
		for _, tok := range compiler.Tokenize(src) {
			fmt.Fprintf(stdout, "%d:%d\t%s\n", tok.Pos.Line, tok.Pos.Column, tok)
			if tok.Type == compiler.TokenError {
				lexErr := &compiler.Error{Kind: compiler.ErrLex, Pos: tok.Pos, Found: tok, Detail: tok.Literal}
				return &sourceError{name: path, src: src, err: lexErr}
			}
		}
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [FILE]",
	Short: "Parse a program and print it in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		prog, _, err := parseFile(m, sourcePath(m, args))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, prog)
		if parseHash {
			for _, f := range prog.Funs {
				h := hash.HashFunction(f)
				fmt.Fprintf(stdout, "; %s %s\n", hex.EncodeToString(h[:8]), f.Name)
			}
			fmt.Fprintf(stdout, "; program %s\n", cache.Key(prog))
		}
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build [FILE]",
	Short: "Compile a program to a .gbc bytecode file",
	Long: `Compile a program to a .gbc bytecode file.

Without FILE the manifest entry is built to the manifest output path.
With FILE the output defaults to FILE with a .gbc extension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		path := sourcePath(m, args)
		mod, err := loadModule(m, path)
		if err != nil {
			return err
		}

		out := buildOutput
		switch {
		case out != "":
		case len(args) == 0:
			out = m.OutputPath()
		default:
			out = strings.TrimSuffix(path, filepath.Ext(path)) + ".gbc"
		}

		data, err := vm.Marshal(mod)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		log.Infof("wrote %s (%d instructions, %d bytes)", out, len(mod.Instrs), len(data))
		return nil
	},
}

var disasmCmd = &cobra.Command{
	Use:   "disasm [FILE]",
	Short: "Print an annotated listing of a source or .gbc file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		path := sourcePath(m, args)
		mod, err := loadModule(m, path)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, mod.DisassembleWithName(filepath.Base(path)))
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the build cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached builds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tBUILD\tBYTES\tHITS\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				e.Key[:16], e.BuildID, e.Size, e.Hits, e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "removed %d builds from %s\n", n, c.Path())
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output file")
	parseCmd.Flags().BoolVar(&parseHash, "hash", false, "print content hashes of each function and the program")

	cacheCmd.AddCommand(cacheListCmd, cachePurgeCmd)
	rootCmd.AddCommand(tokensCmd, parseCmd, buildCmd, disasmCmd, cacheCmd)
}

func openCache() (*cache.Cache, error) {
	m, err := loadManifest()
	if err != nil {
		return nil, err
	}
	return cache.Open(m.CachePath())
}

// compileProgram generates prog's module, through the build cache when the
// manifest enables it.
func compileProgram(m *manifest.Manifest, prog *compiler.Program) (*vm.Module, error) {
	if !m.Cache.Enabled {
		return compiler.Compile(prog)
	}
	c, err := cache.Open(m.CachePath())
	if err != nil {
		return nil, err
	}
	defer c.Close()

	mod, hit, err := c.Compile(context.Background(), prog)
	if err != nil {
		return nil, err
	}
	log.Debugf("build cache hit: %t", hit)
	return mod, nil
}
