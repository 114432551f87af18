// Command quiltd is the Quilt memory engine CLI. It ingests utterances,
// retrieves hybrid context, manages behavioral rules, and handles snapshots
// of the underlying database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/backup"
	"github.com/quiltmem/quilt/internal/classifier"
	"github.com/quiltmem/quilt/internal/config"
	"github.com/quiltmem/quilt/internal/embed"
	"github.com/quiltmem/quilt/internal/engine"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/internal/storage/memindex"
	"github.com/quiltmem/quilt/internal/storage/pgvector"
	"github.com/quiltmem/quilt/internal/storage/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	memory *engine.Memory
}

// open wires the configured stores, embedder, and engine together.
func (a *app) open() error {
	a.cfg = config.Load()

	logger, err := newLogger(a.cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logger

	store, err := sqlite.New(a.cfg.Storage.DataPath)
	if err != nil {
		return err
	}

	index, err := newIndex(a.cfg)
	if err != nil {
		_ = store.Close()
		return err
	}
	embedder, err := newEmbedder(a.cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	var contexts []classifier.Context
	if path := a.cfg.Retrieval.ContextsPath; path != "" {
		contexts, err = classifier.LoadContexts(path)
		if err != nil {
			_ = store.Close()
			return err
		}
	}

	a.memory = engine.New(store, index, embedder, engine.Config{
		Ingestor: engine.IngestorConfig{
			QueueSize:  a.cfg.Ingest.QueueSize,
			Workers:    a.cfg.Ingest.Workers,
			Resolution: a.cfg.Ingest.Resolution,
			JobTimeout: a.cfg.Ingest.JobTimeout,
		},
		Retrieval: engine.OrchestratorConfig{
			SourceTimeout:      a.cfg.Retrieval.SourceTimeout,
			PreferenceStrength: a.cfg.Retrieval.PreferenceStrength,
		},
		Contexts: contexts,
	}, logger)

	return nil
}

func (a *app) close() {
	if a.memory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.memory.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = parsed
	return cfg.Build()
}

func newIndex(cfg *config.Config) (storage.SemanticIndex, error) {
	switch cfg.Storage.VectorBackend {
	case "memory":
		return memindex.New(), nil
	case "pgvector":
		return pgvector.New(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Storage.VectorBackend)
	}
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embed.NewLocalProvider(cfg.Embedding.Dimension), nil
	case "http":
		return embed.NewHTTPProvider(embed.HTTPConfig{
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Model:             cfg.Embedding.Model,
			Dimension:         cfg.Embedding.Dimension,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		}, logger.Named("embed"))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// withMemory opens the engine for one command invocation and tears it down
// afterwards.
func withMemory(fn func(context.Context, *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a := &app{}
		if err := a.open(); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quiltd",
		Short:         "Quilt personal memory engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRememberCmd(),
		newRetrieveCmd(),
		newRulesCmd(),
		newPrefsCmd(),
		newExportCmd(),
		newImportCmd(),
		newStatsCmd(),
		newBackupCmd(),
	)
	return root
}

func newRememberCmd() *cobra.Command {
	var userID, sessionID, turnContext, assistant string

	cmd := &cobra.Command{
		Use:   "remember TEXT",
		Short: "Ingest one utterance into memory",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	cmd.Flags().StringVarP(&turnContext, "context", "c", "", "explicit context, overriding the classifier")
	cmd.Flags().StringVar(&assistant, "assistant", "", "assistant side of the turn")
	_ = cmd.MarkFlagRequired("user")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			result, err := a.memory.Remember(ctx, engine.IngestRequest{
				UserID:            userID,
				SessionID:         sessionID,
				Text:              args[0],
				AssistantResponse: assistant,
				Context:           turnContext,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		})(c, args)
	}
	return cmd
}

func newRetrieveCmd() *cobra.Command {
	var userID, action, contextName string
	var k, maxHops int

	cmd := &cobra.Command{
		Use:   "retrieve QUERY",
		Short: "Assemble memory context for one turn",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().StringVarP(&action, "action", "a", "", "proposed action checked against rules")
	cmd.Flags().StringVarP(&contextName, "context", "c", "", "restrict semantic matches to a context")
	cmd.Flags().IntVarP(&k, "k", "k", 10, "semantic match cap")
	cmd.Flags().IntVar(&maxHops, "max-hops", 2, "graph traversal depth")
	_ = cmd.MarkFlagRequired("user")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			result, err := a.memory.Retrieve(ctx, engine.RetrieveRequest{
				UserID:         userID,
				Query:          args[0],
				ProposedAction: action,
				Context:        contextName,
				K:              k,
				MaxHops:        maxHops,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		})(c, args)
	}
	return cmd
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage behavioral rules",
	}

	var userID, listContext string

	list := &cobra.Command{
		Use:   "list",
		Short: "List active rules, highest priority first",
	}
	list.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	list.Flags().StringVarP(&listContext, "context", "c", "", "show only rules for this context")
	_ = list.MarkFlagRequired("user")
	list.RunE = withMemory(func(ctx context.Context, a *app) error {
		active, err := a.memory.Rules().ActiveRules(ctx, userID, listContext)
		if err != nil {
			return err
		}
		return printJSON(active)
	})

	var priority, ruleContext string
	add := &cobra.Command{
		Use:   "add TEXT",
		Short: "Create a rule",
		Args:  cobra.ExactArgs(1),
	}
	add.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	add.Flags().StringVarP(&priority, "priority", "p", "", "critical, high, normal, or low")
	add.Flags().StringVarP(&ruleContext, "context", "c", "", "context the rule applies in")
	_ = add.MarkFlagRequired("user")
	add.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			rule, err := a.memory.Rules().CreateRule(ctx, userID, args[0], priority, ruleContext)
			if err != nil {
				return err
			}
			return printJSON(rule)
		})(c, args)
	}

	remove := &cobra.Command{
		Use:   "remove RULE_ID",
		Short: "Deactivate a rule",
		Args:  cobra.ExactArgs(1),
	}
	remove.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			return a.memory.Rules().DeleteRule(ctx, args[0])
		})(c, args)
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Install the starter rule set for a new user",
	}
	seed.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = seed.MarkFlagRequired("user")
	seed.RunE = withMemory(func(ctx context.Context, a *app) error {
		created, err := a.memory.Rules().SeedDefaults(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d rules\n", created)
		return nil
	})

	cmd.AddCommand(list, add, remove, seed)
	return cmd
}

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage explicit preferences",
	}

	var userID string

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored preferences",
	}
	list.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = list.MarkFlagRequired("user")
	list.RunE = withMemory(func(ctx context.Context, a *app) error {
		prefs, err := a.memory.Preferences(ctx, userID)
		if err != nil {
			return err
		}
		return printJSON(prefs)
	})

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a confirmed preference at full strength",
		Args:  cobra.ExactArgs(2),
	}
	set.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = set.MarkFlagRequired("user")
	set.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			pref, err := a.memory.SetPreference(ctx, userID, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(pref)
		})(c, args)
	}

	cmd.AddCommand(list, set)
	return cmd
}

func newExportCmd() *cobra.Command {
	var userID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's memory as JSON",
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("user")

	cmd.RunE = withMemory(func(ctx context.Context, a *app) error {
		snapshot, err := a.memory.Export(ctx, userID)
		if err != nil {
			return err
		}
		if out == "" {
			return printJSON(snapshot)
		}
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	})
	return cmd
}

func newImportCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a memory export for a user",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withMemory(func(ctx context.Context, a *app) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var snapshot engine.Snapshot
			if err := json.Unmarshal(data, &snapshot); err != nil {
				return fmt.Errorf("parse export: %w", err)
			}
			report, err := a.memory.Import(ctx, userID, &snapshot)
			if err != nil {
				return err
			}
			return printJSON(report)
		})(c, args)
	}
	return cmd
}

func newStatsCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's stored footprint",
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")

	cmd.RunE = withMemory(func(ctx context.Context, a *app) error {
		stats, err := a.memory.Stats(ctx, userID)
		if err != nil {
			return err
		}
		return printJSON(stats)
	})
	return cmd
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage database snapshots",
	}

	// Backup commands work on the database file directly; the engine must
	// not hold the file open while restoring.
	newManager := func() (*backup.Manager, *zap.Logger, error) {
		cfg := config.Load()
		logger, err := newLogger(cfg.Log.Level)
		if err != nil {
			return nil, nil, err
		}
		return backup.NewManager(cfg.Storage.DataPath, cfg.Backup.Path, cfg.Backup.Keep, logger), logger, nil
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the database",
		RunE: func(*cobra.Command, []string) error {
			m, logger, err := newManager()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			path, err := m.Create()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE: func(*cobra.Command, []string) error {
			m, logger, err := newManager()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			snapshots, err := m.List()
			if err != nil {
				return err
			}
			return printJSON(snapshots)
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots beyond the retention count",
		RunE: func(*cobra.Command, []string) error {
			m, logger, err := newManager()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			removed, err := m.Prune()
			if err != nil {
				return err
			}
			fmt.Printf("removed %d snapshots\n", removed)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore SNAPSHOT",
		Short: "Replace the database with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, logger, err := newManager()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return m.Restore(args[0])
		},
	}

	cmd.AddCommand(create, list, prune, restore)
	return cmd
}
