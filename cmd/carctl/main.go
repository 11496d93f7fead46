package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "carctl",
	Short: "Maintenance commands for the CAR system database",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init("warn")
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "config file")
	rootCmd.AddCommand(rescoreCmd(), importCmd(), dedupeCmd(), generateCmd(), reportsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withDB loads the config and opens the migrated database.
func withDB(fn func(cfg *config.Config, db *gorm.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := models.InitDB(&cfg.Database, false); err != nil {
		return err
	}
	if err := models.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	services.InitSystemLogger(models.GetDB())
	return fn(cfg, models.GetDB())
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func rescoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Recompute score and sentiment of every CAR",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				updated, err := services.NewCarService(db, cfg.Report.Location()).RescoreAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("rescored %d CARs\n", updated)
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Bulk import CARs from the upload template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				result, err := services.NewCarImporter(db).Import(f, filepath.Base(args[0]), nil)
				if err != nil {
					return err
				}
				fmt.Printf("rows %d, created %d, duplicates %d, new contacts %d\n",
					result.Rows, result.Created, result.Duplicates, result.ContactsCreated)
				if len(result.Errors) > 0 {
					tw := newTable(table.Row{"Row", "Error"})
					for _, e := range result.Errors {
						tw.AppendRow(table.Row{e.Row, e.Message})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func dedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe-contacts",
		Short: "Merge customer contacts sharing name, company and department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				result, err := services.NewCustomerService(db).Dedupe()
				if err != nil {
					return err
				}
				fmt.Printf("%d duplicate groups, %d contacts removed %v\n", result.Groups, len(result.Removed), result.Removed)
				return nil
			})
		},
	}
}

func generateCmd() *cobra.Command {
	var sendEmail bool
	cmd := &cobra.Command{
		Use:   "generate-report",
		Short: "Run the weekly report pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				settings := services.NewSystemConfigService(db)
				analyzer := services.NewAIAnalysisClient(services.NewAIService(db, &cfg.OpenAI),
					cfg.Report.SummaryModel, cfg.Report.StrategyModel,
					func() *uint { return settings.GetWeeklyReportSettings().LLMConfigID })
				reports := services.NewWeeklyReportService(db, services.NewGormReportStore(db), analyzer, cfg.Report.Location())

				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Report.Timeout())
				defer cancel()
				report, err := reports.Generate(ctx, func(p services.JobProgress) {
					if p.CurrentCompany != "" {
						fmt.Printf("[%d/%d] %s\n", p.CompletedCompanies, p.TotalCompanies, p.CurrentCompany)
					}
				})
				if err != nil {
					return err
				}
				fmt.Printf("saved report %d: %s\n", report.ID, report.Title)

				if sendEmail {
					result, err := services.NewEmailService(db, cfg.Mail).SendWeeklyReport(ctx, report)
					if err != nil {
						return err
					}
					fmt.Println(result.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&sendEmail, "send-email", false, "mail the report to weekly recipients")
	return cmd
}

func reportsCmd() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored weekly reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(cfg *config.Config, db *gorm.DB) error {
				reports := services.NewWeeklyReportService(db, services.NewGormReportStore(db), nil, cfg.Report.Location())
				resp, err := reports.List(&services.ReportListRequest{Page: page, PageSize: size})
				if err != nil {
					return err
				}
				tw := newTable(table.Row{"ID", "Title", "Week Start", "Created"})
				for _, r := range resp.Items {
					tw.AppendRow(table.Row{r.ID, r.Title, r.WeekStart.Format("2006-01-02"), r.CreatedAt.Format(time.DateTime)})
				}
				tw.AppendFooter(table.Row{"", "total", resp.Total, ""})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 20, "page size")
	return cmd
}
