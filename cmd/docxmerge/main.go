package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docxmerge/internal/config"
	"docxmerge/internal/merge"
	"docxmerge/internal/render"
	"docxmerge/internal/trackvia"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docxmerge",
	Short: "docxmerge - merge record data into docx templates",
	Long: `docxmerge merges records from a record-store view into .docx templates
and files the generated documents back into a destination view.

Each run fetches the candidate records, inlines their image fields, clears
the template relationship so records aren't merged twice, renders one
document per referenced template, and attaches the results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes one merge pass
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one merge pass over a source view",
	Long: `Runs the merge pipeline once:
  1. Fetch candidate records from the source view
  2. Inline image fields and clear template relationships
  3. Group records by target template, fetching each template once
  4. Render one document per group and file it in the destination view

Exactly one of --table or --view selects the source; --table resolves
through the source.table_views map in the configuration.`,
	RunE: runMerge,
}

// validateCmd checks configured field names against live schemas
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configured field names against live view schemas",
	Long: `Fetches the source, template, and destination view structures and
verifies that every configured field name exists, reporting each mismatch
with the configuration key that set it. Run this after changing table
layouts to catch typos before they fail a merge mid-pipeline.`,
	RunE: runValidate,
}

var (
	tableID int
	viewID  int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "docxmerge.yaml", "path to configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall run timeout")

	runCmd.Flags().IntVar(&tableID, "table", 0, "triggering table id (resolved via source.table_views)")
	runCmd.Flags().IntVar(&viewID, "view", 0, "source view id (bypasses the table map)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// newClient loads configuration and opens an authenticated store session.
func newClient(ctx context.Context) (*trackvia.Client, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := trackvia.New(cfg.Account.APIKey,
		trackvia.WithHost(cfg.Account.Environment),
		trackvia.WithLogger(logger))
	if err := client.Login(ctx, cfg.Account.Username, cfg.Account.Password); err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, cfg, err := newClient(ctx)
	if err != nil {
		return err
	}

	source := viewID
	if source == 0 {
		if tableID == 0 {
			return fmt.Errorf("either --table or --view is required")
		}
		source, err = cfg.ViewForTable(tableID)
		if err != nil {
			return err
		}
	}

	settings := merge.Settings{
		SourceViewID:      source,
		TemplateLinkField: cfg.Source.TemplateLinkField,
		RecordIDField:     cfg.Source.RecordIDField,
		LastUserField:     cfg.Source.LastUserField,
		ImageFields:       cfg.Source.ImageFields,
		TemplateViewID:    cfg.Templates.ViewID,
		TemplateDocField:  cfg.Templates.DocumentField,
		DestinationViewID: cfg.Destination.ViewID,
		DestDocumentField: cfg.Destination.DocumentField,
		DestDetailsField:  cfg.Destination.DetailsField,
		DestTemplateField: cfg.Destination.TemplateLinkField,
		DestMergeUser:     cfg.Destination.MergeUserField,
		ImageWidth:        cfg.Render.ImageWidth,
		ImageHeight:       cfg.Render.ImageHeight,
		StagingDir:        cfg.Render.StagingDir,
	}

	orch := merge.NewOrchestrator(client, render.NewDocxEngine(logger), settings, logger)
	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	for _, group := range result.Failed() {
		fmt.Printf("  template %d failed: %v\n", group.TemplateID, group.Err)
	}
	if result.ResetFailures > 0 {
		fmt.Printf("  %d records kept their template link and will merge again next run\n", result.ResetFailures)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, cfg, err := newClient(ctx)
	if err != nil {
		return err
	}

	checks := []struct {
		name   string
		viewID int
		roles  []merge.FieldRole
	}{
		{"template", cfg.Templates.ViewID, cfg.TemplateRoles()},
		{"destination", cfg.Destination.ViewID, cfg.DestinationRoles()},
	}
	for _, source := range cfg.Source.TableViews {
		checks = append(checks, struct {
			name   string
			viewID int
			roles  []merge.FieldRole
		}{"source", source, cfg.SourceRoles()})
	}

	mismatches := 0
	for _, check := range checks {
		view, err := client.GetView(ctx, check.viewID, nil)
		if err != nil {
			return fmt.Errorf("fetching %s view %d: %w", check.name, check.viewID, err)
		}
		for _, roleErr := range merge.ValidateRoles(check.roles, check.viewID, view.Structure) {
			fmt.Printf("%s view: %v\n", check.name, roleErr)
			mismatches++
		}
	}

	if mismatches > 0 {
		return fmt.Errorf("%d configured field names do not match live schemas", mismatches)
	}
	fmt.Println("all configured field names match live schemas")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
