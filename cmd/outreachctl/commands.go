package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/outreach/internal/app"
	"github.com/edvin/outreach/internal/db"
	"github.com/edvin/outreach/internal/definition"
)

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch tick",
		Long:  "Claim and execute every due scheduled job once, as the external timer would.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), "dispatch", func(a *app.App, _ zerolog.Logger) error {
				res, err := a.Dispatcher.Dispatch(cmd.Context(), "cli")
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending core database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig("migrate")
			if err != nil {
				return err
			}
			logger.Info().Msg("running database migrations")
			if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newApplyCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a campaign definition file",
		Long: `Upsert the templates, target groups, workflows and mapping templates
declared in a YAML definition. Active workflows with a cron expression get
their next run scheduled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := definition.LoadFile(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "definition is valid: %d templates, %d target groups, %d workflows, %d mapping templates\n",
					len(def.Templates), len(def.TargetGroups), len(def.Workflows), len(def.MappingTemplates))
				return nil
			}

			return withApp(cmd.Context(), "migrate", func(a *app.App, logger zerolog.Logger) error {
				applier := definition.NewApplier(definition.StoresFromServices(a.Services), a.Resolver, logger)
				sum, err := applier.Apply(cmd.Context(), def)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d templates, %d target groups, %d workflows, %d bindings, %d mapping templates\n",
					sum.Templates, sum.TargetGroups, sum.Workflows, sum.Bindings, sum.MappingTemplates)
				for _, job := range sum.ScheduledJobs {
					fmt.Fprintf(out, "scheduled job %s for workflow %s at %s\n",
						job.ID, job.WorkflowID, job.ScheduledTime.In(a.Location).Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the definition YAML file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the scheduler health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), "migrate", func(a *app.App, _ zerolog.Logger) error {
				report, err := a.Monitor.Check(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "migrate", func(a *app.App, _ zerolog.Logger) error {
				if err := a.Services.Jobs.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", args[0])
				return nil
			})
		},
	}
}
