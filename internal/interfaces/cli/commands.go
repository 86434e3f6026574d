package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/expedition-settlement/internal/container"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/external/openai"
	"github.com/garyjia/expedition-settlement/migrations"
	"github.com/garyjia/expedition-settlement/pkg/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.New(database.Config{Path: cfg.Database.Path, MaxOpenConns: 1}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.NewMigrator(db, logger).RunMigrations(migrations.FS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", applied, cfg.Database.Path)
			return nil
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load clients, categories, expeditions and packages from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fixtures, err := DecodeFixtures(f)
			if err != nil {
				return err
			}

			return opts.withContainer(cmd.Context(), func(c *container.Container) error {
				svc := c.Services()
				seeder := &Seeder{
					Catalog:     svc.Catalog,
					Expeditions: svc.Expedition,
					Packages:    svc.Package,
					Actor:       opts.actor,
				}
				res, err := seeder.Apply(cmd.Context(), fixtures)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d client(s), %d categor(ies), %d expedition(s), %d package(s), %d line(s)\n",
					res.Clients, res.Categories, res.Expeditions, res.Packages, res.Lines)
				return nil
			})
		},
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <expedition-id>",
		Short: "Write the expedition settlement workbook (.xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(c *container.Container) error {
				ctx := cmd.Context()
				svc := c.Services()

				exp, err := svc.Expedition.Get(ctx, args[0])
				if err != nil {
					return err
				}
				summary, err := svc.Expedition.Summary(ctx, exp.ID)
				if err != nil {
					return err
				}
				clients, err := svc.Catalog.ListClients(ctx)
				if err != nil {
					return err
				}
				byID := make(map[string]*entity.Client, len(clients))
				for _, cl := range clients {
					byID[cl.ID] = cl
				}

				path := output
				if path == "" {
					path = fmt.Sprintf("expedicion-%s.xlsx", exp.ID)
				}
				out, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := c.Workbook().Write(exp, summary, byID, out); err != nil {
					out.Close()
					return err
				}
				if err := out.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d packages)\n", path, summary.PackageCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default expedicion-<id>.xlsx)")
	return cmd
}

func newExtractCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <invoice-file>",
		Short: "Run the AI invoice extraction on a local file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.OpenAI.APIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is not set")
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mimeType, _, _ := strings.Cut(http.DetectContentType(content), ";")

			prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
			if err != nil {
				prompts = openai.DefaultPrompts()
			}
			extractor := openai.NewExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, prompts, logger)

			ex, err := extractor.ExtractInvoice(cmd.Context(), content, mimeType)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ex)
		},
	}
}
