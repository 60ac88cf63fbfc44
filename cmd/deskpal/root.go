package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskpal/deskpal/internal/ai"
	"github.com/deskpal/deskpal/internal/companion"
	"github.com/deskpal/deskpal/internal/config"
	"github.com/deskpal/deskpal/internal/db"
	"github.com/deskpal/deskpal/internal/logging"
	"github.com/deskpal/deskpal/internal/store"
)

var verbose bool

// SetupRootCmd builds the CLI tree.
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskpal",
		Short: "Deskpal - AI desktop companion",
		Long: `Deskpal is an AI desktop companion that nudges you to drink water, eat on
time, stretch, and rest, speaking in the voice of a configurable character.

Just type 'deskpal' to start the companion.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunCompanion()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(CharacterCmd())
	rootCmd.AddCommand(ReminderCmd())
	rootCmd.AddCommand(MedCmd())
	rootCmd.AddCommand(DrinkCmd())
	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(HistoryCmd())

	return rootCmd
}

// RunCmd starts the companion session, same as running with no arguments.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the companion session",
		Run: func(cmd *cobra.Command, args []string) {
			RunCompanion()
		},
	}
}

// openStore initializes the data directory and opens the settings store,
// shared by every subcommand.
func openStore() (*store.Store, string, error) {
	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize data directory: %w", err)
	}
	st, err := store.Open(config.DocumentPath(dataDir), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open settings: %w", err)
	}
	return st, dataDir, nil
}

// RunCompanion starts the companion session and blocks until interrupted.
func RunCompanion() {
	st, dataDir, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logging.InitFile(config.LogPath(dataDir))
	defer logging.Close()
	if !verbose {
		// File logging stays on; the console stays quiet.
		logging.Disable()
	}

	history, err := db.NewSQLite(config.HistoryDBPath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: trigger history unavailable: %v\n", err)
		history = nil
	} else {
		defer history.Close()
	}

	templates := ai.LoadTemplates(config.PromptsPath(dataDir))
	session := companion.New(companion.Options{
		Store:     st,
		Generator: ai.NewClient(st, templates, nil),
		History:   history,
		OSNotify:  true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := session.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printStartupBanner(dataDir, st)

	// Print companion utterances until shutdown.
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			fmt.Println("Deskpal stopped.")
			return
		case ev := <-session.Events():
			if ev.Text != "" {
				fmt.Printf("  [%s] %s\n", ev.Kind, ev.Text)
			}
		}
	}
}

func printStartupBanner(dataDir string, st *store.Store) {
	name := "your companion"
	if snap, err := st.CurrentSnapshot(); err == nil {
		name = snap.Name
	}
	fmt.Println()
	fmt.Printf("  Deskpal is running. %s is watching over you.\n", name)
	fmt.Printf("  Data: %s\n", dataDir)
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()
}
