package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/cmcintosh36/grumpy/compiler"
	"github.com/cmcintosh36/grumpy/manifest"
	"github.com/cmcintosh36/grumpy/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("grumpy.cli")

var (
	cfgFile   string
	verbosity int

	// stdout and stderr are swapped out by tests.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "grumpy [FILE]",
	Short: "Compiler and virtual machine for the grumpy language",
	Long: `grumpy compiles grumpy source (.gpy) to GrumpyVM bytecode and runs it.

Given only a FILE, grumpy prints the token stream, the parsed program and
the generated instructions. Without a FILE the manifest's entry is used.

Examples:
  grumpy fact.gpy                # tokens, AST and instructions
  grumpy run fact.gpy            # compile and execute
  grumpy build -o fact.gbc       # compile the manifest entry
  grumpy serve                   # compile service on :8080 and :9090`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commonlog.Configure(verbosity, nil)
	},
	RunE: runDump,
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "manifest file (default: nearest grumpy.toml or grumpy.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
}

// sourceError is a front-end failure together with the text it refers to,
// so the report can show a snippet.
type sourceError struct {
	name string
	src  string
	err  error
}

func (e *sourceError) Error() string { return e.name + ": " + e.err.Error() }

func (e *sourceError) Unwrap() error { return e.err }

func reportError(err error) {
	var se *sourceError
	if errors.As(err, &se) {
		fmt.Fprint(stderr, compiler.FormatError(se.err, se.name, se.src))
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// loadManifest returns the --config manifest, the nearest one above the
// working directory, or the defaults.
func loadManifest() (*manifest.Manifest, error) {
	if cfgFile != "" {
		return manifest.LoadFile(cfgFile)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		log.Debug("no manifest found, using defaults")
		return manifest.Default(), nil
	}
	return m, nil
}

// sourcePath picks the file argument, falling back to the manifest entry.
func sourcePath(m *manifest.Manifest, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return m.EntryPath()
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("couldn't read %s: %w", path, err)
	}
	return string(data), nil
}

// parseFile reads and parses path with the manifest's nesting limit.
func parseFile(m *manifest.Manifest, path string) (*compiler.Program, string, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, "", err
	}
	prog, err := parseSource(m, path, src)
	return prog, src, err
}

func parseSource(m *manifest.Manifest, name, src string) (*compiler.Program, error) {
	p := compiler.NewParser(src)
	p.MaxDepth = m.Build.MaxDepth
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, &sourceError{name: name, src: src, err: err}
	}
	return prog, nil
}

func isBytecode(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gbc")
}

// loadModule decodes a .gbc file or compiles a source file, going through
// the build cache when the manifest enables it.
func loadModule(m *manifest.Manifest, path string) (*vm.Module, error) {
	if isBytecode(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("couldn't read %s: %w", path, err)
		}
		mod, err := vm.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return mod, nil
	}

	prog, src, err := parseFile(m, path)
	if err != nil {
		return nil, err
	}
	mod, err := compileProgram(m, prog)
	if err != nil {
		return nil, &sourceError{name: path, src: src, err: err}
	}
	return mod, nil
}

// ---------------------------------------------------------------------------
// grumpy FILE
// ---------------------------------------------------------------------------

func runDump(cmd *cobra.Command, args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	path := sourcePath(m, args)
	src, err := readSource(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "tokens are:")
	for _, tok := range compiler.Tokenize(src) {
		fmt.Fprintln(stdout, tok)
	}
	fmt.Fprintln(stdout)

	prog, err := parseSource(m, path, src)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ast is:\n%s\n\n", prog)

	mod, err := compiler.Compile(prog)
	if err != nil {
		return &sourceError{name: path, src: src, err: err}
	}
	fmt.Fprintf(stdout, "instructions are: %s\n", vm.Format(mod.Instrs))
	return nil
}
