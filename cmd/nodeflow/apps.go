package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
	"github.com/ravi-parthasarathy/nodeflow/pkg/store"
)

// ─── apps ────────────────────────────────────────────────────────────────────

func appsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage saved flows and their run history",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "nodeflow.db", "path to the app store database")

	// openDB resolves the database path (flag beats config file) and opens
	// the store.
	openDB := func(cmd *cobra.Command) (*store.SQLite, error) {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		if !cmd.Flags().Changed("db") && cfg.DB != "" {
			dbPath = cfg.DB
		}
		return store.Open(dbPath)
	}

	save := &cobra.Command{
		Use:   "save <name> <flow.json|flow.dot>",
		Short: "Save a flow under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flow.LoadFile(args[1])
			if err != nil {
				return err
			}
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SaveApp(cmd.Context(), args[0], f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %q (%d nodes, %d edges)\n",
				args[0], len(f.Nodes), len(f.Edges))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			apps, err := s.ListApps(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(apps) == 0 {
				fmt.Fprintln(out, "(no apps)")
				return nil
			}
			width := 4
			for _, app := range apps {
				if len(app.Name) > width {
					width = len(app.Name)
				}
			}
			for _, app := range apps {
				fmt.Fprintf(out, "%-*s  %3d nodes  updated %s\n",
					width, app.Name, len(app.Flow.Nodes),
					app.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved flow's definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			app, err := s.GetApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := app.Flow.Encode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved app and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteApp(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
			return nil
		},
	}

	var limit int
	runs := &cobra.Command{
		Use:   "runs <name>",
		Short: "Show run history for an app, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.ListRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "(no runs)")
				return nil
			}
			for _, rec := range recs {
				status := "ok"
				if rec.Deadlocked {
					status = "deadlocked"
				}
				fmt.Fprintf(out, "#%-4d  %s  %10s  %-10s  %d outputs\n",
					rec.ID, rec.StartedAt.Local().Format(time.DateTime),
					rec.Duration.Round(time.Millisecond), status, len(rec.Outputs))
			}
			return nil
		},
	}
	runs.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 = all)")

	cmd.AddCommand(save, list, show, del, runs)
	return cmd
}
