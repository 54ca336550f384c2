package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"

	"healthdeck/internal/models"
	"healthdeck/internal/monitor"
	"healthdeck/internal/probe"
	"healthdeck/internal/storage"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one history retention pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := monitor.NewCleaner(db).Run(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [service-id...]",
		Short: "Probe stored services once and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			services, err := selectServices(cmd.Context(), db, args)
			if err != nil {
				return err
			}
			registry := probe.NewRegistry()
			results := iter.Map(services, func(svc *models.Service) models.ProbeResult {
				return registry.Run(cmd.Context(), *svc)
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tTIME\tERROR")
			unhealthy := 0
			for i, svc := range services {
				r := results[i]
				if r.Status == models.StatusUnhealthy {
					unhealthy++
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dms\t%s\n", svc.ID, svc.Name, svc.Kind, r.Status, r.ResponseTimeMs, r.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if unhealthy > 0 {
				return fmt.Errorf("%d of %d services unhealthy", unhealthy, len(services))
			}
			return nil
		},
	}
}

func selectServices(ctx context.Context, db *storage.DB, args []string) ([]models.Service, error) {
	if len(args) == 0 {
		return db.ListServices(ctx)
	}
	services := make([]models.Service, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid service id %q", arg)
		}
		svc, err := db.GetService(ctx, id)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}
