package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
	"github.com/icaroo-oliveira/HermesAI/internal/memory"
)

// openMemory opens the configured store; tests replace it.
var openMemory = func(ctx context.Context, cfg *config.Config) (*memory.Store, error) {
	embedder, err := memory.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return memory.Open(ctx, cfg.Memory.Dir, embedder, memory.WithDimension(cfg.Memory.Embedding.Dimension))
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or reset the long-term memory",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many conversation turns are stored",
	Args:  cobra.NoArgs,
	RunE: withMemory(func(cmd *cobra.Command, _ []string, store *memory.Store) error {
		stats := store.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nLocation: %s\n", stats.TotalEntries, stats.Location)
		return nil
	}),
}

var (
	searchLimit     int
	searchThreshold float64
	clearYes        bool
)

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find stored turns similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: withMemory(func(cmd *cobra.Command, args []string, store *memory.Store) error {
		results, err := store.Retrieve(cmd.Context(), strings.Join(args, " "), searchLimit, searchThreshold)
		if err != nil {
			return fmt.Errorf("search memory: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No memories found.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.3f] %s\n%s\n\n", i+1, r.Similarity, r.Metadata.Timestamp, r.Text)
		}
		return nil
	}),
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored memory",
	Args:  cobra.NoArgs,
	RunE: withMemory(func(cmd *cobra.Command, _ []string, store *memory.Store) error {
		if !clearYes {
			return fmt.Errorf("refusing to clear %d memories without --yes", store.Stats().TotalEntries)
		}
		if err := store.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Memory cleared.")
		return nil
	}),
}

func init() {
	memorySearchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 5, "Maximum results")
	memorySearchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "Minimum similarity")
	memoryClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Confirm deletion")
	memoryCmd.AddCommand(memoryStatsCmd, memorySearchCmd, memoryClearCmd)
}

func withMemory(fn func(cmd *cobra.Command, args []string, store *memory.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
			cmd.SetContext(ctx)
		}
		store, err := openMemory(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open memory: %w", err)
		}
		defer store.Close()
		return fn(cmd, args, store)
	}
}
