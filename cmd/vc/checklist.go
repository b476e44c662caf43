package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vesselcheck/internal/cache"
	"vesselcheck/internal/catalog"
	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine"
	"vesselcheck/internal/repo"
	"vesselcheck/internal/risk"
)

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Built-in item catalogs",
		Long:  "Each checklist type has a built-in catalog of items. A custom item file uses the same YAML format.",
	}
	cat.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List catalogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]any
			tw := newTable("Type", "Title", "Version", "Items", "Categories")
			for _, t := range catalog.Types() {
				c, err := catalog.Get(t)
				if err != nil {
					return err
				}
				out = append(out, map[string]any{"type": c.Type, "title": c.Title, "version": c.Version, "items": len(c.Entries)})
				tw.AppendRow(table.Row{c.Type, c.Title, c.Version, len(c.Entries), strings.Join(c.Categories(), ", ")})
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			tw.Render()
			return nil
		},
	})
	cat.AddCommand(&cobra.Command{
		Use:   "show <type>",
		Short: "Show the items of a catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Get(domain.ChecklistType(args[0]))
			if err != nil {
				return err
			}
			items := c.Items()
			if viper.GetBool("json") {
				return printJSON(items)
			}
			printItems(items)
			return nil
		},
	})
	return cat
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{
		Use:   "checklist",
		Short: "Manage checklists",
		Long:  "A checklist is one inspection of one vessel: its items, their values and the five-step workflow that takes it to completion.",
	}
	cl.AddCommand(checklistCreateCmd())
	cl.AddCommand(checklistListCmd())
	cl.AddCommand(checklistShowCmd())
	return cl
}

func checklistCreateCmd() *cobra.Command {
	var opts engine.CreateOptions
	var checklistType, priority, itemsFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a checklist from a catalog or an item file",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			opts.Type = domain.ChecklistType(checklistType)
			opts.Priority = domain.Priority(priority)
			if itemsFile != "" {
				data, err := os.ReadFile(itemsFile)
				if err != nil {
					return err
				}
				custom, err := catalog.Parse(data)
				if err != nil {
					return err
				}
				opts.Items = custom.Items()
				if !cmd.Flags().Changed("type") {
					opts.Type = custom.Type
				}
				if opts.Title == "" {
					opts.Title = custom.Title
				}
			}
			if opts.ID == "" {
				opts.ID = uuid.NewString()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateChecklist(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("created %s (%s, %d items)\n", c.ID, c.Type, len(c.Items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "checklist id (random UUID if omitted)")
	cmd.Flags().StringVar(&checklistType, "type", string(domain.ChecklistSafety), "checklist type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title (defaults to the catalog title)")
	cmd.Flags().StringVar(&opts.VesselID, "vessel", "", "vessel id (defaults to workspace.vessel)")
	cmd.Flags().StringVar(&opts.VesselName, "vessel-name", "", "vessel name")
	cmd.Flags().StringVar(&opts.Location, "location", "", "inspection location")
	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityMedium), "low, medium, high or critical")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&itemsFile, "items", "", "YAML item file replacing the catalog")
	return cmd
}

func checklistListCmd() *cobra.Command {
	var f repo.ChecklistFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListChecklists(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable("ID", "Title", "Type", "Vessel", "Status", "Score", "Sync", "Updated")
				for _, s := range list {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Type, s.VesselID, statusColor(string(s.Status)), scoreText(s.ComplianceScore), statusColor(string(s.SyncStatus)), s.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.VesselID, "vessel", "", "vessel filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.SyncStatus, "sync-status", "", "sync status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func checklistShowCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				return withCache(cmd.Context(), func(ctx context.Context, s *cache.Store) error {
					c, err := s.Get(ctx, args[0])
					if err != nil {
						return err
					}
					return printChecklist(c)
				})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetChecklist(ctx, args[0])
				if err != nil {
					return err
				}
				return printChecklist(c)
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the offline cache instead of the store")
	return cmd
}

func printChecklist(c domain.Checklist) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	fmt.Printf("%s  %s\n", color.New(color.Bold).Sprint(c.ID), c.Title)
	fmt.Printf("type %s  vessel %s  status %s  score %s  sync %s  revision %d\n",
		c.Type, c.VesselID, statusColor(string(c.Status)), scoreText(c.ComplianceScore), statusColor(string(c.SyncStatus)), c.Revision)
	printItems(c.Items)
	tw := newTable("Step", "Status", "Role", "Assignee", "Completed by", "Decision")
	for _, s := range c.Workflow {
		tw.AppendRow(table.Row{s.Type, statusColor(string(s.Status)), s.RequiredRole, s.AssignedTo, s.CompletedBy, s.Decision})
	}
	tw.Render()
	return nil
}

func printItems(items []domain.ChecklistItem) {
	tw := newTable("ID", "Title", "Category", "Type", "Req", "Value", "Status", "Depends on")
	for _, it := range items {
		value := ""
		if it.Value != nil {
			value = fmt.Sprint(it.Value)
			if it.Unit != "" {
				value += " " + it.Unit
			}
		}
		req := ""
		if it.Required {
			req = "*"
		}
		tw.AppendRow(table.Row{it.ID, it.Title, it.Category, it.Type, req, value, statusColor(string(it.Status)), strings.Join(it.Dependencies, ",")})
	}
	tw.Render()
}

func itemCmd() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Edit checklist items",
	}
	item.AddCommand(itemSetCmd())
	return item
}

func itemSetCmd() *cobra.Command {
	var value, status, evidenceURI, evidenceKind, evidenceNote string
	var clear bool
	cmd := &cobra.Command{
		Use:   "set <checklist> <item>",
		Short: "Set an item value, status or evidence",
		Long:  "Values are read as JSON when they parse (true, 12.5, [\"a\",\"b\"]) and as text otherwise. Setting a value completes the item unless --status says otherwise.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ItemEditOptions{
				ItemID:  args[1],
				Clear:   clear,
				Status:  domain.ItemStatus(status),
				ActorID: actorID(),
			}
			if cmd.Flags().Changed("value") {
				opts.Value = parseValue(value)
			}
			if evidenceURI != "" {
				opts.Evidence = []domain.Evidence{{
					ID:   uuid.NewString(),
					Kind: evidenceKind,
					URI:  evidenceURI,
					Note: evidenceNote,
				}}
			}
			if opts.Value == nil && !opts.Clear && opts.Status == "" && len(opts.Evidence) == 0 {
				return errors.New("one of --value, --clear, --status or --evidence is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.EditItem(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				it, _ := c.Item(opts.ItemID)
				fmt.Printf("%s %s  score %s\n", it.ID, statusColor(string(it.Status)), scoreText(c.ComplianceScore))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "item value")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the item value")
	cmd.Flags().StringVar(&status, "status", "", "pending, completed, failed, na or review_required")
	cmd.Flags().StringVar(&evidenceURI, "evidence", "", "evidence URI to attach")
	cmd.Flags().StringVar(&evidenceKind, "evidence-kind", "photo", "file, photo or document")
	cmd.Flags().StringVar(&evidenceNote, "evidence-note", "", "evidence note")
	return cmd
}

func workflowCmd() *cobra.Command {
	var decision, assignee, comment string
	cmd := &cobra.Command{
		Use:   "workflow <checklist> <action> <step>",
		Short: "Advance the checklist workflow",
		Long:  "Actions are assign, start, complete and skip; steps are creation, inspection, review, approval and completion. Completing approval needs --decision approved or rejected.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.AdvanceOptions{
				Action:   compliance.Action(args[1]),
				Step:     domain.StepType(args[2]),
				Decision: decision,
				Assignee: assignee,
				Comment:  comment,
				ActorID:  actorID(),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Advance(ctx, args[0], opts)
				if err != nil {
					var v *compliance.WorkflowViolation
					if errors.As(err, &v) && !viper.GetBool("json") {
						for _, f := range v.Failures {
							fmt.Fprintf(os.Stderr, "  %s %s: %s\n", color.New(color.FgRed).Sprint(f.Severity), f.ItemID, f.Message)
						}
						if len(v.Blocked) > 0 {
							fmt.Fprintf(os.Stderr, "  blocked: %s\n", strings.Join(v.Blocked, ", "))
						}
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("%s %s %s: checklist %s\n", c.ID, opts.Action, opts.Step, statusColor(string(c.Status)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected (approval step)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee (assign action)")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <checklist>",
		Short: "Evaluate every validation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Validate(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				tw := newTable("Item", "Rule", "Severity", "Message")
				for _, f := range v.Failures {
					tw.AppendRow(table.Row{f.ItemID, f.RuleType, f.Severity, f.Message})
				}
				tw.Render()
				for item, pending := range v.Blocked {
					fmt.Printf("blocked %s: waiting on %s\n", item, strings.Join(pending, ", "))
				}
				if v.Submittable {
					fmt.Println(color.New(color.FgGreen).Sprint("submittable"))
				} else {
					fmt.Println(color.New(color.FgRed).Sprintf("not submittable: %d blocking failures", len(v.Blocking)))
				}
				return nil
			})
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <checklist>",
		Short: "Show compliance score and progress per category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := newTable("Category", "Items", "Required", "Completed", "Failed", "N/A", "Score", "Progress")
				for _, c := range s.Categories {
					tw.AppendRow(table.Row{c.Category, c.Total, c.Required, c.Completed, c.Failed, c.NA, scoreText(c.ComplianceScore), scoreText(c.Progress)})
				}
				tw.AppendFooter(table.Row{"total", "", "", "", "", "", scoreText(s.ComplianceScore), scoreText(s.Progress)})
				tw.Render()
				return nil
			})
		},
	}
}

func analyzeCmd() *cobra.Command {
	var meta []string
	var history bool
	cmd := &cobra.Command{
		Use:   "analyze <checklist>",
		Short: "Run AI analysis on a checklist",
		Long:  "Sends the checklist to analysis.endpoint and records the result. --meta key=value adds vessel context to the request.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]any{}
			for _, kv := range meta {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --meta %q, want key=value", kv)
				}
				extra[k] = parseValue(v)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if history {
					list, err := e.AnalysisHistory(ctx, args[0], 20)
					if err != nil {
						return err
					}
					return printJSONOrTable(list)
				}
				c, err := e.Analyze(ctx, args[0], actorID(), extra)
				if err != nil {
					return err
				}
				if viper.GetBool("json") || c.Analysis == nil {
					return printJSON(c.Analysis)
				}
				a := c.Analysis
				fmt.Printf("overall %d  risk %s  anomalies %d\n", a.OverallScore, a.RiskLevel, len(a.Anomalies))
				for _, an := range a.Anomalies {
					fmt.Printf("  [%s] %s: %s\n", an.Severity, an.ItemID, an.Description)
				}
				for _, s := range a.Suggestions {
					fmt.Println("  -", s)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "vessel context key=value (repeatable)")
	cmd.Flags().BoolVar(&history, "history", false, "list stored analysis results instead")
	return cmd
}

func riskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk <probability> <impact>",
		Short: "Classify a probability/impact pair (1..5 each)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("probability: %w", err)
			}
			i, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("impact: %w", err)
			}
			a, err := risk.Classify(p, i)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(a)
			}
			fmt.Printf("score %d  level %s\n", a.Score, riskColor(a.Level))
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "matrix",
		Short: "Print the 5x5 risk matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := risk.Matrix()
			if viper.GetBool("json") {
				return printJSON(m)
			}
			tw := newTable("P \\ I", 1, 2, 3, 4, 5)
			for p := len(m) - 1; p >= 0; p-- {
				row := table.Row{p + 1}
				for _, a := range m[p] {
					row = append(row, riskColor(a.Level))
				}
				tw.AppendRow(row)
			}
			tw.Render()
			return nil
		},
	})
	return cmd
}

func riskColor(l risk.Level) string {
	switch l {
	case risk.Critical:
		return color.New(color.FgRed, color.Bold).Sprint(l)
	case risk.High:
		return color.New(color.FgRed).Sprint(l)
	case risk.Medium:
		return color.New(color.FgYellow).Sprint(l)
	default:
		return color.New(color.FgGreen).Sprint(l)
	}
}
