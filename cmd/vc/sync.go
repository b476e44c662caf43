package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vesselcheck/internal/cache"
	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine"
	vesselchecksdk "vesselcheck/sdk/go"
)

type syncOutcome struct {
	ChecklistID string   `json:"checklist_id"`
	Outcome     string   `json:"outcome"`
	Revision    int      `json:"revision,omitempty"`
	LocalWins   []string `json:"local_wins,omitempty"`
	Discarded   []string `json:"discarded,omitempty"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func syncCmd() *cobra.Command {
	var remote, token string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync [checklist...]",
		Short: "Push pending checklists to the remote and store the reconciled copy",
		Long:  "Each checklist waiting for sync is pushed to sync.remote. The remote's reconciled copy is merged back locally. Unreachable remotes and structural conflicts leave the checklist sync_failed for the next run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if remote == "" {
					remote = e.Config.Sync.Remote
				}
				if remote == "" {
					return errors.New("no remote: set sync.remote in vesselcheck.yml or pass --remote")
				}
				if token == "" {
					token = e.Config.Sync.Token
				}
				if timeout == 0 {
					timeout = e.Config.Sync.Timeout.Std()
				}
				client := vesselchecksdk.New(remote).WithToken(token)
				if timeout > 0 {
					client.Timeout = timeout
				}
				if client.APIKey == "" && client.BearerToken == "" {
					client.ActorID = actorID()
				}

				var pending []domain.Checklist
				if len(args) > 0 {
					for _, id := range args {
						c, err := e.GetChecklist(ctx, id)
						if err != nil {
							return err
						}
						pending = append(pending, c)
					}
				} else {
					var err error
					if pending, err = e.PendingSync(ctx); err != nil {
						return err
					}
				}

				outcomes := make([]syncOutcome, 0, len(pending))
				for _, c := range pending {
					outcomes = append(outcomes, pushChecklist(ctx, e, client, c))
				}
				if viper.GetBool("json") {
					return printJSON(outcomes)
				}
				if len(outcomes) == 0 {
					fmt.Println("nothing to sync")
					return nil
				}
				tw := newTable("Checklist", "Outcome", "Revision", "Local wins", "Detail")
				for _, o := range outcomes {
					detail := o.Error
					if len(o.Conflicts) > 0 {
						detail = fmt.Sprintf("conflicts: %v", o.Conflicts)
					}
					if len(o.Discarded) > 0 {
						detail = fmt.Sprintf("discarded: %v", o.Discarded)
					}
					tw.AppendRow(table.Row{o.ChecklistID, outcomeColor(o.Outcome), o.Revision, len(o.LocalWins), detail})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "remote base URL (defaults to sync.remote)")
	cmd.Flags().StringVar(&token, "token", "", "api key or bearer token (defaults to sync.token)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "request timeout (defaults to sync.timeout)")
	return cmd
}

func pushChecklist(ctx context.Context, e engine.Engine, client *vesselchecksdk.Client, c domain.Checklist) syncOutcome {
	out := syncOutcome{ChecklistID: c.ID}
	record, err := compliance.Serialize(c)
	if err != nil {
		out.Outcome, out.Error = "failed", err.Error()
		return out
	}
	res, err := client.PushChecklist(ctx, c.ID, record)
	if err != nil {
		var apiErr *vesselchecksdk.APIError
		if errors.As(err, &apiErr) && apiErr.IsConflict() {
			out.Outcome = "conflict"
			if ids, ok := apiErr.Details["item_ids"].([]any); ok {
				for _, id := range ids {
					out.Conflicts = append(out.Conflicts, fmt.Sprint(id))
				}
			}
		} else if errors.As(err, &apiErr) && apiErr.IsRejected() {
			out.Outcome = "rejected"
		} else {
			out.Outcome = "failed"
		}
		out.Error = err.Error()
		if markErr := e.MarkSyncFailed(ctx, c.ID, actorID(), err); markErr != nil {
			e.Logger.Warn("mark sync failed", "checklist_id", c.ID, "error", markErr)
		}
		return out
	}
	canonical, err := compliance.Deserialize(res.Checklist)
	if err != nil {
		out.Outcome, out.Error = "failed", err.Error()
		return out
	}
	applied, err := e.ApplyRemote(ctx, canonical, actorID())
	if err != nil {
		out.Outcome, out.Error = "conflict", err.Error()
		out.Conflicts = applied.Conflicts
		return out
	}
	out.Outcome = "synced"
	if res.Created {
		out.Outcome = "created"
	}
	out.Revision = applied.Checklist.Revision
	out.LocalWins = res.LocalWins
	out.Discarded = res.Discarded
	return out
}

func outcomeColor(o string) string {
	switch o {
	case "synced", "created":
		return color.New(color.FgGreen).Sprint(o)
	case "conflict":
		return color.New(color.FgYellow).Sprint(o)
	default:
		return color.New(color.FgRed).Sprint(o)
	}
}

func cacheCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Offline checklist cache",
		Long:  "Every committed checklist is mirrored into the offline cache. Restore brings cached copies back into the store after it was lost or replaced.",
	}
	var unsynced bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List cached checklists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), func(ctx context.Context, s *cache.Store) error {
				items, err := s.List(ctx, unsynced)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Vessel", "Status", "Sync", "Revision", "Updated")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.VesselID, statusColor(string(it.Status)), statusColor(string(it.SyncStatus)), it.Revision, it.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unsynced, "unsynced", false, "only records not yet synced")
	c.AddCommand(list)
	c.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Restore cached checklists into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.RestoreFromCache(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				for _, r := range results {
					switch {
					case r.Created:
						fmt.Printf("%s restored\n", r.Checklist.ID)
					case len(r.Conflicts) > 0:
						fmt.Printf("%s %s: %v\n", r.Checklist.ID, outcomeColor("conflict"), r.Conflicts)
					default:
						fmt.Printf("%s merged (revision %d)\n", r.Checklist.ID, r.Checklist.Revision)
					}
				}
				return nil
			})
		},
	})
	return c
}
