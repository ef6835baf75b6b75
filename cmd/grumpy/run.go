package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cmcintosh36/grumpy/manifest"
	"github.com/cmcintosh36/grumpy/server"
	"github.com/cmcintosh36/grumpy/vm"
)

var (
	runMaxSteps int
	runMaxStack int
	runMaxHeap  int
	runTimeout  time.Duration
	runRemote   string
)

var runCmd = &cobra.Command{
	Use:   "run [FILE]",
	Short: "Compile and execute a source or .gbc file",
	Long: `Compile and execute a program, printing whatever it prints followed
by its result value.

With --remote the source is sent to a running "grumpy serve" over gRPC.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, m)
		path := sourcePath(m, args)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		if runRemote != "" {
			return runRemoteFile(ctx, path)
		}

		mod, err := loadModule(m, path)
		if err != nil {
			return err
		}
		machine := vm.NewMachine(mod,
			vm.WithOutput(stdout),
			vm.WithMaxSteps(m.Run.MaxSteps),
			vm.WithMaxStack(m.Run.MaxStack),
			vm.WithMaxHeap(m.Run.MaxHeap),
		)
		result, err := machine.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, result)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "instruction limit, 0 for none (default from manifest)")
	runCmd.Flags().IntVar(&runMaxStack, "max-stack", 0, "operand stack limit (default from manifest)")
	runCmd.Flags().IntVar(&runMaxHeap, "max-heap", 0, "heap limit in cells (default from manifest)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "wall-clock limit, 0 for none")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "run on a compile service at host:port (gRPC)")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicit flags override the manifest's [run] section.
func applyRunFlags(cmd *cobra.Command, m *manifest.Manifest) {
	if cmd.Flags().Changed("max-steps") {
		m.Run.MaxSteps = runMaxSteps
	}
	if cmd.Flags().Changed("max-stack") {
		m.Run.MaxStack = runMaxStack
	}
	if cmd.Flags().Changed("max-heap") {
		m.Run.MaxHeap = runMaxHeap
	}
}

func runRemoteFile(ctx context.Context, path string) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(runRemote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", runRemote, err)
	}
	defer conn.Close()

	resp, err := server.NewCompileClient(conn).Run(ctx, src)
	if err != nil {
		return fmt.Errorf("remote run: %w", err)
	}
	fields := resp.GetFields()
	fmt.Fprint(stdout, fields["output"].GetStringValue())
	if !fields["success"].GetBoolValue() {
		msg := fields["error"].GetStringValue()
		if line := fields["line"].GetNumberValue(); line > 0 {
			return fmt.Errorf("%s:%d:%d: %s", path, int(line), int(fields["column"].GetNumberValue()), msg)
		}
		return errors.New(msg)
	}
	fmt.Fprintln(stdout, fields["result"].GetStringValue())
	return nil
}
