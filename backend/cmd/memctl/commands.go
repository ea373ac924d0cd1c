package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"discord-agent/backend/internal/adapter"
	"discord-agent/backend/internal/graph"
	"discord-agent/backend/internal/memory"
	"discord-agent/backend/internal/state"
	"discord-agent/backend/internal/store"
	"discord-agent/backend/pkg/config"
	"discord-agent/backend/pkg/logger"
)

// env holds the connections a command opened; close releases them in reverse order
type env struct {
	cfg     *config.Config
	store   *store.Store
	driver  neo4j.DriverWithContext
	manager *memory.Manager
}

func openStore(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	st, err := store.Open(ctx, cfg.MetadataDriver, cfg.MetadataDSN)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	return &env{cfg: cfg, store: st}, nil
}

func openMemory(ctx context.Context) (*env, error) {
	e, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	driver, err := graph.NewDriver(ctx, e.cfg.Neo4jURI, e.cfg.Neo4jUser, e.cfg.Neo4jPassword)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	e.driver = driver

	vectors := graph.NewRepository(driver, e.cfg.Neo4jDatabase, e.cfg.VectorDimensions)
	embedder := adapter.NewEmbeddingClient(e.cfg.LocalLLMURL, e.cfg.VectorDimensions, e.cfg.EmbedTimeout)
	e.manager = memory.NewManager(vectors, e.store, embedder, e.cfg.VectorDimensions, e.cfg.StoreTimeout)
	return e, nil
}

func (e *env) close() {
	if e.driver != nil {
		_ = e.driver.Close(context.Background())
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	logger.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memctl",
		Short: "Operator tooling for the agent's long-term memory",
		Long: `memctl inspects and repairs the two memory stores (Neo4j vector index and
the SQL metadata store) and seeds guild configuration.

Connection settings are read from the same environment variables as the bot.`,
		SilenceUsage: true,
	}

	root.AddCommand(newReconcileCmd(), newPurgeCmd(), newIDsCmd(), newSeedGuildCmd(), newAuditCmd())
	return root
}

func newReconcileCmd() *cobra.Command {
	var immediate bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete ids that exist in only one store",
		Long: `Compare ids across both stores. Vectors without metadata are deleted, and
metadata rows without a vector are deleted as the remainder of an unfinished
delete or purge. Nothing is ever re-indexed.

Without --immediate an orphan vector is only deleted once it has been seen on
two passes, so a single run only reports first-seen orphans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openMemory(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			report, err := memory.NewReconciler(e.manager).Reconcile(cmd.Context(), immediate)
			printReport(cmd, report)
			return err
		},
	}
	cmd.Flags().BoolVar(&immediate, "immediate", false, "delete orphan vectors on first sight")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <guild-id>",
		Short: "Delete every memory belonging to a guild from both stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openMemory(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.manager.PurgeGuild(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d memories from guild %s\n", n, args[0])
			return err
		},
	}
}

func newIDsCmd() *cobra.Command {
	var guildID string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ids",
		Short: "List memory ids held by each store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openMemory(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			vectorIDs, metadataIDs, err := e.manager.StoreIDs(cmd.Context(), guildID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vector index:   %d\n", len(vectorIDs))
			fmt.Fprintf(out, "metadata store: %d\n", len(metadataIDs))
			if verbose {
				fmt.Fprintf(out, "\n== VECTORS ==\n%s\n", strings.Join(vectorIDs, "\n"))
				fmt.Fprintf(out, "\n== METADATA ==\n%s\n", strings.Join(metadataIDs, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "restrict to one guild")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every id")
	return cmd
}

func newSeedGuildCmd() *cobra.Command {
	var (
		ownerID string
		country string
		name    string
		allowed string
	)

	cmd := &cobra.Command{
		Use:   "seed-guild <guild-id>",
		Short: "Configure a guild with a persona template",
		Long: fmt.Sprintf(`Create or replace a guild's persona and server configuration from a
country template. Known countries: %s (anything else uses US).`, strings.Join(store.TemplateCountries(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			persona := store.PersonaTemplate(country)
			if name != "" {
				persona.Name = name
			}
			cfg := state.ServerConfig{
				GuildID:         args[0],
				OwnerID:         ownerID,
				PersonaID:       persona.ID,
				AllowedCommands: allowed,
			}
			if err := e.store.SaveGuild(cmd.Context(), persona, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "guild %s configured with persona %s (%s), allowed: %s\n",
				args[0], persona.Name, persona.Country, allowed)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "guild owner user id")
	cmd.Flags().StringVar(&country, "country", "US", "persona template country")
	cmd.Flags().StringVar(&name, "name", "", "override the template's persona name")
	cmd.Flags().StringVar(&allowed, "allowed", "send_message", "comma-delimited task types the agent may request")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit <guild-id>",
		Short: "Show the newest audit log entries for a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			entries, err := e.store.ListAudit(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No audit entries found.")
				return nil
			}
			fmt.Fprintf(out, "%-25s %-16s %-20s %s\n", "TIME", "ACTION", "ACTOR", "DETAILS")
			for _, entry := range entries {
				fmt.Fprintf(out, "%-25s %-16s %-20s %s\n",
					entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), entry.Action, entry.ActorID, entry.Details)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

func printReport(cmd *cobra.Command, r memory.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "vectors:          %d\n", r.VectorIDs)
	fmt.Fprintf(out, "metadata rows:    %d\n", r.MetadataIDs)
	fmt.Fprintf(out, "orphan vectors:   %d (deleted %d, deferred %d)\n", len(r.OrphanVectors), r.VectorsDeleted, r.Deferred)
	fmt.Fprintf(out, "orphan metadata:  %d (deleted %d)\n", len(r.OrphanMetadata), r.MetadataDeleted)
	if r.Failed > 0 {
		fmt.Fprintf(out, "failed:           %d\n", r.Failed)
	}
}
