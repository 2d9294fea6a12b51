package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intakeflow/server/internal/agent/pipeline"
	"github.com/intakeflow/server/internal/memory"
)

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain the long-term memory store",
	}
	cmd.AddCommand(
		newMemoryPutCmd(a),
		newMemorySearchCmd(a),
		newMemorySweepCmd(a),
	)
	return cmd
}

func openStore(cmd *cobra.Command, a *app) (*memory.Store, error) {
	return pipeline.OpenMemory(cmd.Context(), a.cfg.memoryConfig(), nil)
}

func newMemoryPutCmd(a *app) *cobra.Command {
	var meta []string

	cmd := &cobra.Command{
		Use:   "put <text>",
		Short: "Store a memory item and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := make(map[string]string, len(meta))
			for _, kv := range meta {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --meta %q: want key=value", kv)
				}
				m[k] = v
			}

			store, err := openStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Put(cmd.Context(), strings.Join(args, " "), m)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata as key=value (repeatable)")
	return cmd
}

func newMemorySearchCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the best matching memory items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.Retrieve(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if asJSON {
				for i := range items {
					items[i].Embedding = nil
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no memories found")
				return err
			}
			for _, it := range items {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %s\n", it.RelevanceScore, it.ID, it.Text); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "k", 0, "max results (0 uses VECTOR_RETRIEVAL_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print items as JSON")
	return cmd
}

func newMemorySweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict items past their TTL or below the retention floor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "evicted %d item(s)\n", n)
			return err
		},
	}
}
