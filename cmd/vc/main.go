package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vesselcheck/internal/app"
	"vesselcheck/internal/cache"
	"vesselcheck/internal/config"
	"vesselcheck/internal/db"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine"
	"vesselcheck/internal/migrate"
	"vesselcheck/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "vc",
	Short: "Vessel inspection checklists",
	Long: `vesselcheck runs vessel inspection checklists from draft to completion.
- Workspace: a directory holding vesselcheck.yml, the checklist store and the offline cache.
- Checklists: items built from a typed catalog (dp, machine_routine, nautical_routine, safety, environmental) or a custom item file.
- Items: values are checked against their type and validation rules; dependent items wait for their prerequisites.
- Workflow: creation -> inspection -> review -> approval -> completion, each step gated by a role.
- Sync: edits made offline are pushed to the remote and reconciled item by item.
- Event log: every accepted change, view with 'vc log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if viper.GetBool("no-color") {
			color.NoColor = true
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VESSELCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var id, vessel string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create vesselcheck.yml and the workspace store",
		Long:  "Writes a default vesselcheck.yml (kept if it already exists), creates the store and grants the current actor admin plus every workflow role when no actor exists yet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if id == "" {
					abs, err := filepath.Abs(workspace)
					if err != nil {
						return err
					}
					id = filepath.Base(abs)
				}
				content := config.GenerateDefault(id)
				if vessel != "" {
					content = strings.Replace(content, "  id: "+id+"\n", "  id: "+id+"\n  vessel: "+vessel+"\n", 1)
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", path)
			} else if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				applied, err := migrate.Status(ctx, e.DB)
				if err != nil {
					return err
				}
				schema := 0
				if len(applied) > 0 {
					schema = applied[len(applied)-1].Version
				}
				fmt.Printf("workspace %s ready (%s, schema %d)\n", e.Config.Workspace.ID, db.Path(workspace), schema)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workspace id (defaults to the directory name)")
	cmd.Flags().StringVar(&vessel, "vessel", "", "default vessel id for new checklists")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is vesselcheck.yml: workflow roles, skippable steps, sync remote, analysis endpoint, server and webhooks.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate vesselcheck.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println(color.New(color.FgGreen).Sprint("config OK"))
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every accepted change: checklist creation, item edits, workflow commands, syncs, analyses and role changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Checklist", "Entity", "Actor")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ChecklistID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ChecklistID, "checklist", "", "checklist id filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

type engineOptions struct {
	withCache bool
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withEngineOpts(ctx, engineOptions{withCache: true}, fn)
}

func withEngineOpts(ctx context.Context, opts engineOptions, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	created, err := app.Bootstrap(ctx, r, cfg, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	if created {
		logger.Info("bootstrapped actor", "actor_id", viper.GetString("actor-id"))
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	if opts.withCache {
		store, err := cache.Open(ctx, workspace)
		if err != nil {
			logger.Warn("offline cache unavailable", "error", err)
		} else {
			defer store.Close()
			e.Cache = store
		}
	}
	return fn(ctx, e)
}

func withCache(ctx context.Context, fn func(context.Context, *cache.Store) error) error {
	store, err := cache.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusColor(s string) string {
	switch s {
	case string(domain.StatusCompleted), string(domain.StatusApproved), string(domain.SyncSynced):
		return color.New(color.FgGreen).Sprint(s)
	case string(domain.StatusRejected), string(domain.ItemFailed), string(domain.SyncFailed):
		return color.New(color.FgRed).Sprint(s)
	case string(domain.StatusPendingReview), string(domain.ItemReviewRequired), string(domain.SyncPending):
		return color.New(color.FgYellow).Sprint(s)
	case string(domain.StatusInProgress):
		return color.New(color.FgCyan).Sprint(s)
	default:
		return s
	}
}

func scoreText(score *int) string {
	if score == nil {
		return "-"
	}
	text := fmt.Sprintf("%d%%", *score)
	switch {
	case *score >= 90:
		return color.New(color.FgGreen).Sprint(text)
	case *score >= 70:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgRed).Sprint(text)
	}
}

// parseValue reads a CLI item value: JSON literals (true, 12.5, ["a","b"]) decode to their
// type, anything else is taken as text.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
