package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/config"
	"github.com/nidhogg/mcp-server-qdrant/internal/embedding"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and fill the model artifact cache",
	}
	cmd.AddCommand(newCacheCheckCmd(), newCachePullCmd())
	return cmd
}

func newCacheCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "List cached models and report what the configured model still needs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cache := newCache(cfg, zap.NewNop())
			return printCache(cmd.OutOrStdout(), cfg, cache, fastembed.NewRegistry(zap.NewNop()))
		},
	}
}

func newCachePullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Download the configured model into the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Server.Level())
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, ok := configuredModel(cfg, fastembed.NewRegistry(logger))
			if !ok {
				return errs.Errorf(errs.KindConfiguration, "provider %q does not use the artifact cache", cfg.Embedding.Kind)
			}
			dir, err := newCache(cfg, logger).Ensure(cmd.Context(), d)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s ready in %s\n", d.Source, dir)
			return err
		},
	}
}

// configuredModel resolves the descriptor the configured provider loads.
func configuredModel(cfg *config.Config, reg *fastembed.Registry) (fastembed.ModelDescriptor, bool) {
	switch cfg.Embedding.Kind {
	case embedding.KindFastEmbed:
		return reg.Lookup(cfg.Embedding.Model)
	case embedding.KindCustomFastEmbed:
		return embedding.CustomDescriptor(cfg.Embedding), true
	}
	return fastembed.ModelDescriptor{}, false
}

func printCache(out io.Writer, cfg *config.Config, cache *fastembed.Cache, reg *fastembed.Registry) error {
	models, err := cache.Inspect()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "cache: %s\n\n", cache.Dir())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPO\tREVISION\tSNAPSHOTS\tFILES\tBYTES")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", m.Repo, shortRevision(m.Revision), len(m.Snapshots), m.Files, m.Bytes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	d, ok := configuredModel(cfg, reg)
	if !ok {
		_, err = fmt.Fprintf(out, "\nprovider %q does not use the cache\n", cfg.Embedding.Kind)
		return err
	}
	snap := cache.Lookup(d)
	if snap.Complete() {
		_, err = fmt.Fprintf(out, "\n%s: complete at %s\n", d.Source, snap.Dir)
		return err
	}
	_, err = fmt.Fprintf(out, "\n%s: missing %s\n", d.Source, strings.Join(snap.Missing, ", "))
	return err
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
