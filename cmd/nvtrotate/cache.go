package main

import (
	"context"
	"fmt"
	"path"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/nvtrotate/internal/cache"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the provider response cache",
	Long: `Cached provider responses never expire. Use these commands to see what
is stored and to force a refetch of one provider's data.`,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls [provider]",
	Short: "List cached entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheLs,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <provider>",
	Short: "Delete every cached entry of a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCachePurge,
}

func init() {
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*cache.Store, *zap.Logger, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, nil, err
	}
	storage, err := archive.Open(cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache storage: %w", err)
	}
	return cache.NewStore(storage, nil), log, nil
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	store, log, err := openCache()
	if err != nil {
		return err
	}
	defer log.Sync()

	provider := ""
	if len(args) == 1 {
		provider = args[0]
	}

	entries, err := store.List(context.Background(), provider)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tENTRY")
	for _, e := range entries {
		dir, file := path.Split(e)
		fmt.Fprintf(w, "%s\t%s\n", strings.TrimSuffix(dir, "/"), file)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", len(entries))
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	store, log, err := openCache()
	if err != nil {
		return err
	}
	defer log.Sync()

	n, err := store.Purge(context.Background(), args[0])
	if err != nil {
		return err
	}
	log.Info("cache purged", zap.String("provider", args[0]), zap.Int("entries", n))
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries from %s\n", n, args[0])
	return nil
}
