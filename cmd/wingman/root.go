package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/server"
	"github.com/fridaysatfour/wingman/internal/svc"
)

// Shared CLI flags
var (
	verbose bool
)

// ServerConfig holds the loaded server configuration (set by main)
var ServerConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c

	rootCmd := &cobra.Command{
		Use:   "wingman",
		Short: "Wingman - conversational coaching backend",
		Long: `Wingman is the Fridays at Four coaching backend: a stage-routed
conversation engine with durable memory, dedup, and background
summarization.

Just type 'wingman' to start the server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				logging.Disable()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(SummarizeCmd())
	rootCmd.AddCommand(StatusCmd())

	return rootCmd
}

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coaching server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := server.Run(ctx, *ServerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// SummarizeCmd forces summarization of a thread regardless of buffer
// size. Useful for draining threads after a config change.
func SummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <user-id> <thread-id>",
		Short: "Force-summarize a thread's live messages",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			svcCtx, err := svc.NewServiceContext(*ServerConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer svcCtx.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if err := svcCtx.Summarizer.ForceSummarize(ctx, args[0], args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Summarization failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Thread summarized.")
		},
	}
}

// StatusCmd prints a member's stage progress.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show a member's stage progress",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svcCtx, err := svc.NewServiceContext(*ServerConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer svcCtx.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			userID := args[0]
			fmt.Printf("Current stage: %s\n", svcCtx.Engine.CurrentStage(ctx, userID))

			progress, err := svcCtx.DB.StageProgressForUser(ctx, userID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			for _, p := range progress {
				line := fmt.Sprintf("  %-12s step %d, %.0f%% complete", p.Stage, p.Step, p.Completion)
				if p.IsComplete {
					line += " (done)"
				}
				if p.SkipUntil != nil && time.Now().Before(*p.SkipUntil) {
					line += fmt.Sprintf(" (skipped until %s)", p.SkipUntil.Format(time.RFC3339))
				}
				fmt.Println(line)
			}
		},
	}
}
