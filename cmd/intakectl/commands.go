package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/intake/internal/application"
	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/store/memory"
	"github.com/JonMunkholm/intake/internal/variant"
)

func (c *cli) variantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variant RAW...",
		Short: "Normalize variant strings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Raw        string `json:"raw"`
				Normalized string `json:"normalized"`
				Parsed     bool   `json:"parsed"`
				WeightKg   *int64 `json:"weightKg"`
			}
			out := make([]row, len(args))
			rows := make([][]string, len(args))
			for i, raw := range args {
				res := variant.Normalize(raw)
				out[i] = row{Raw: raw, Normalized: res.Text, Parsed: res.Parsed, WeightKg: res.WeightKg}
				rows[i] = []string{raw, res.Text, strconv.FormatBool(res.Parsed), weight(res.WeightKg)}
			}
			return c.render(cmd.OutOrStdout(), out, []string{"Raw", "Normalized", "Parsed", "Kg"}, rows)
		},
	}
}

func (c *cli) classifyCmd() *cobra.Command {
	var manufacturer string
	cmd := &cobra.Command{
		Use:   "classify PRODUCT_NAME",
		Short: "Show the category a product name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.offlineConfig()
			classifier, err := application.LoadClassifier(cfg.Classifier.RulesPath)
			if err != nil {
				return err
			}
			cats, err := application.LoadCategories(cfg.Classifier.TaxonomySeedPath)
			if err != nil {
				return err
			}

			cls, ok := classifier.Classify(args[0], manufacturer, classify.NewTaxonomy(cats))
			if !ok {
				return c.render(cmd.OutOrStdout(), map[string]any{"matched": false},
					[]string{"Product", "Category"}, [][]string{{args[0], "unclassified"}})
			}
			return c.render(cmd.OutOrStdout(), cls,
				[]string{"Product", "Category", "Source", "Match"},
				[][]string{{args[0], cls.String(), string(cls.Source), cls.Match}})
		},
	}
	cmd.Flags().StringVarP(&manufacturer, "manufacturer", "m", "", "manufacturer name")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Stage a .csv or .xlsx file for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			svc, closeFn, err := c.ingestService(cmd, dryRun)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.Ingest(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", filepath.Base(args[0]), err)
			}

			rows := make([][]string, 0, len(res.Records)+len(res.FailedRows))
			for _, r := range res.Records {
				rows = append(rows, recordRow(r))
			}
			for _, f := range res.FailedRows {
				rows = append(rows, []string{"line " + strconv.Itoa(f.LineNumber), "", "", "", "", "", "failed: " + f.Reason})
			}
			if err := c.render(cmd.OutOrStdout(), res, recordHeaders, rows); err != nil {
				return err
			}
			if c.format == formatTable {
				fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d rows, %d staged, %d failed, %d unparseable, %d unclassified\n",
					res.BatchID, res.TotalRows, res.Staged, res.Failed, res.Unparseable, res.Unclassified)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "normalize and validate without a database")
	return cmd
}

// ingestService returns a service on in-memory stores for a dry run.
func (c *cli) ingestService(cmd *cobra.Command, dryRun bool) (*core.Service, func(), error) {
	if !dryRun {
		app, err := c.open(cmd)
		if err != nil {
			return nil, nil, err
		}
		return app.Service, func() { _ = app.Close() }, nil
	}

	cfg := c.offlineConfig()
	classifier, err := application.LoadClassifier(cfg.Classifier.RulesPath)
	if err != nil {
		return nil, nil, err
	}
	cats, err := application.LoadCategories(cfg.Classifier.TaxonomySeedPath)
	if err != nil {
		return nil, nil, err
	}
	svc, err := core.NewService(core.Deps{
		Staging:    memory.NewStaging(),
		Canonical:  memory.NewCanonical(),
		Taxonomy:   memory.NewTaxonomy(cats),
		Classifier: classifier,
	}, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {}, nil
}

func (c *cli) stagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Review staging records",
	}

	var status, search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List staging records by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := core.ParseStatus(status)
			if err != nil {
				return err
			}
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Service.ListByStatus(cmd.Context(), st, search)
			if err != nil {
				return err
			}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = recordRow(r)
			}
			return c.render(cmd.OutOrStdout(), records, recordHeaders, rows)
		},
	}
	list.Flags().StringVarP(&status, "status", "s", string(core.StatusPending), "pending, approved, rejected or duplicate")
	list.Flags().StringVarP(&search, "search", "q", "", "product name contains")

	var reason string
	reject := c.transitionCmd("reject ID...", "Reject pending records", core.StatusRejected, &reason)
	reject.Flags().StringVarP(&reason, "reason", "r", "", "rejection reason (required)")

	cmd.AddCommand(
		list,
		c.transitionCmd("approve ID...", "Approve pending or duplicate records", core.StatusApproved, nil),
		reject,
		c.deleteCmd(),
	)
	return cmd
}

func (c *cli) transitionCmd(use, short string, to core.Status, reason *string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			r := ""
			if reason != nil {
				r = *reason
			}
			res, err := app.Service.Transition(cmd.Context(), ids, to, r)
			if err != nil {
				return err
			}
			return renderBulk(c, cmd, res)
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete staging records in any status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.Remove(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return renderBulk(c, cmd, res)
		},
	}
}

type bulkItem struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

func renderBulk[T any](c *cli, cmd *cobra.Command, res core.BulkResult[T]) error {
	items := make([]bulkItem, len(res.Outcomes))
	rows := make([][]string, len(res.Outcomes))
	for i, o := range res.Outcomes {
		items[i] = bulkItem{ID: o.ID, OK: o.Err == nil, Error: errText(o.Err)}
		state := "ok"
		if o.Err != nil {
			state = items[i].Error
		}
		rows[i] = []string{o.ID.String(), state}
	}
	if err := c.render(cmd.OutOrStdout(), items, []string{"ID", "Result"}, rows); err != nil {
		return err
	}
	if c.format == formatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed\n", res.Succeeded(), res.Failed())
	}
	return nil
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [ID...]",
		Short: "Commit approved records, marking catalog duplicates",
		Long:  "Commit approved records. With no ids every approved record is reconciled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var res core.ReconcileResult
			if len(ids) == 0 {
				res, err = app.Service.ReconcileApproved(cmd.Context())
			} else {
				res, err = app.Service.ReconcileIDs(cmd.Context(), ids)
			}
			if err != nil {
				return err
			}

			type failure struct {
				Record core.StagingRecord `json:"record"`
				Error  string             `json:"error"`
			}
			out := struct {
				Committed  []core.CanonicalProduct `json:"committed"`
				Duplicates []core.StagingRecord    `json:"duplicates"`
				Failed     []failure               `json:"failed"`
			}{Committed: res.Committed, Duplicates: res.Duplicates}

			var rows [][]string
			for _, p := range res.Committed {
				rows = append(rows, []string{p.SourceStagingID.String(), p.ProductName, p.VariantNormalized, "committed"})
			}
			for _, d := range res.Duplicates {
				rows = append(rows, []string{d.ID.String(), d.ProductName, d.VariantNormalized, "duplicate"})
			}
			for _, f := range res.Failed {
				out.Failed = append(out.Failed, failure{Record: f.Record, Error: errText(f.Err)})
				rows = append(rows, []string{f.Record.ID.String(), f.Record.ProductName, f.Record.VariantNormalized, errText(f.Err)})
			}
			if err := c.render(cmd.OutOrStdout(), out, []string{"Staging ID", "Product", "Variant", "Result"}, rows); err != nil {
				return err
			}
			if c.format == formatTable {
				fmt.Fprintf(cmd.OutOrStdout(), "%d committed, %d duplicates, %d failed\n",
					len(res.Committed), len(res.Duplicates), len(res.Failed))
			}
			return nil
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			app, err := application.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func (c *cli) seedTaxonomyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-taxonomy",
		Short: "Load categories from a YAML file, or the built-in set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Classifier.TaxonomySeedPath
			}
			app, err := application.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := application.SeedTaxonomy(cmd.Context(), app.Store, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d subcategories\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "taxonomy YAML (default TAXONOMY_SEED_PATH or built-in)")
	return cmd
}

func (c *cli) open(cmd *cobra.Command) (*application.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return application.Open(cmd.Context(), cfg)
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(args))
	for i, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", a, err)
		}
		ids[i] = id
	}
	return ids, nil
}
