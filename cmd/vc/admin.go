package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vesselcheck/internal/engine"
	"vesselcheck/internal/metrics"
	"vesselcheck/internal/server"
)

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Actors, roles and api keys",
		Long:  "Actors hold roles that gate workflow steps (inspector, reviewer, approver by default). Only admins change roles or issue api keys.",
	}
	cmd.AddCommand(actorListCmd())
	cmd.AddCommand(actorWhoamiCmd())
	cmd.AddCommand(actorGrantCmd())
	cmd.AddCommand(actorRevokeCmd())
	cmd.AddCommand(actorKeyCmd())
	return cmd
}

func actorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors and their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actors, err := e.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := newTable("ID", "Roles", "Created")
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, strings.Join(a.Roles, ", "), a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func actorWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current actor's roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles, err := e.Repo.ActorRoles(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": actorID(), "roles": roles})
			})
		},
	}
}

func actorGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, actorID(), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func actorRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, actorID(), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func actorKeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage api keys",
	}
	var target, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an api key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--actor required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, plaintext, err := e.CreateAPIKey(ctx, actorID(), target, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "key": plaintext})
				}
				fmt.Printf("key %s for %s:\n%s\n", k.ID, k.ActorID, plaintext)
				return nil
			})
		},
	}
	create.Flags().StringVar(&target, "actor", "", "actor id")
	create.Flags().StringVar(&name, "name", "", "key label")
	key.AddCommand(create)

	var listFor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List api keys of an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listFor == "" {
				listFor = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actorID(), listFor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listFor, "actor", "", "actor id (defaults to the current actor)")
	key.AddCommand(list)

	key.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an api key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, actorID(), args[0])
			})
		},
	})
	return key
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the checklist API with OpenAPI docs at <base>/docs, Prometheus metrics at /metrics and configured webhooks. VESSELCHECK_JWT_SECRET overrides server.jwt_secret.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngineOpts(ctx, engineOptions{}, func(ctx context.Context, e engine.Engine) error {
				sc := e.Config.Server
				if addr == "" {
					addr = sc.Addr
				}
				if basePath == "" {
					basePath = sc.BasePath
				}
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					secret = sc.JWTSecret
				}
				if secret == "" && !sc.AllowLegacyActorHeader {
					return fmt.Errorf("VESSELCHECK_JWT_SECRET or server.jwt_secret is required unless server.allow_legacy_actor_header is set")
				}
				e.Metrics = metrics.New()
				authCfg := server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: sc.AllowLegacyActorHeader,
					DevLogin:               sc.DevLogin,
					Logger:                 e.Logger,
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Metrics: e.Metrics})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e, e.Logger)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				e.Logger.Info("serving vesselcheck API", "addr", addr, "base_path", basePath, "workspace", e.Config.Workspace.ID)
				fmt.Printf("Serving vesselcheck API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}
