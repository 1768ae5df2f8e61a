package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vinectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vinectl",
		Short: "VineLedger development CLI",
		Long: `vinectl drives the local docker stack, inspects Vine spreadsheets offline,
mints bearer tokens for testing and queues valuation jobs.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newStackCmd(),
		newRunCmd(),
		newInspectCmd(),
		newTokenCmd(),
		newRevalueCmd(),
	)
	return cmd
}

func newStackCmd() *cobra.Command {
	var (
		detach    bool
		skipBuild bool
		volumes   bool
		follow    bool
	)
	stack := &cobra.Command{
		Use:   "stack",
		Short: "Manage the docker compose stack (postgres, redis, minio, api, worker)",
	}
	up := composeCmd("up [service...]", "Start the stack", func(args []string) []string {
		if !skipBuild {
			args = append(args, "--build")
		}
		if detach {
			args = append(args, "-d")
		}
		return args
	})
	up.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	up.Flags().BoolVar(&skipBuild, "skip-build", false, "Skip rebuilding images before starting")

	down := composeCmd("down", "Stop the stack", func(args []string) []string {
		if volumes {
			args = append(args, "-v")
		}
		return args
	})
	down.Flags().BoolVarP(&volumes, "volumes", "v", false, "Remove stack volumes")

	logs := composeCmd("logs [service...]", "Tail service logs", func(args []string) []string {
		if follow {
			args = append(args, "-f")
		}
		return args
	})
	logs.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")

	stack.AddCommand(up, down, logs)
	return stack
}

// composeCmd runs `docker compose <verb>` with flags added by extra and the
// positional service names appended.
func composeCmd(use, short string, extra func([]string) []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			verb := cmd.Name()
			composeArgs := extra([]string{"compose", "-f", composeFile, verb})
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual binaries directly",
	}
	for name, path := range map[string]string{
		"api":    "./cmd/api",
		"worker": "./cmd/worker",
		"server": "./cmd/server",
	} {
		path := path
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("go run %s", path),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
