// Command portalctl inspects and exports the compliance portal's persisted
// state without going through the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"compliance/api/internal/admin"
	"compliance/api/internal/app"
	"compliance/api/internal/config"
	"compliance/api/internal/export"
	"compliance/api/internal/store"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: the loaded store and the user the
// command acts as.
type env struct {
	store   *store.Store
	backend *app.Backend
	catalog store.Catalog
	actor   store.User
}

func rootCmd() *cobra.Command {
	var actorEmail string

	cmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operate on the compliance portal's snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&actorEmail, "as", "admin@desicrew.in", "Email of the user the command acts as")

	open := func(ctx context.Context) (*env, error) {
		cfg := config.Load()
		st, backend, err := app.OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		catalog, err := app.Catalog(cfg)
		if err != nil {
			backend.Close()
			return nil, err
		}
		actor, ok := st.Snapshot().UserByEmail(actorEmail)
		if !ok || !actor.IsActive {
			backend.Close()
			return nil, fmt.Errorf("no active user with email %q", actorEmail)
		}
		return &env{store: st, backend: backend, catalog: catalog, actor: actor}, nil
	}

	cmd.AddCommand(usersCmd(open), activityCmd(open), defaultersCmd(open), ledgerCmd(open), historyCmd(open))
	return cmd
}

type opener func(ctx context.Context) (*env, error)

func usersCmd(open opener) *cobra.Command {
	var query string
	users := &cobra.Command{Use: "users", Short: "User directory"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List users, optionally filtered by name, email, role or department",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()

			found, err := admin.New(e.store, admin.Options{}).Users(e.actor, query)
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), found)
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "Filter text")
	users.AddCommand(list)
	return users
}

func activityCmd(open opener) *cobra.Command {
	var limit int
	activity := &cobra.Command{Use: "activity", Short: "Activity log"}
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the activity log, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			entries, err := admin.New(e.store, admin.Options{}).ActivityTrail(e.actor, query)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tUSER\tDEPARTMENT\tACTION\tDESCRIPTION")
			for _, entry := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", entry.Timestamp, entry.UserName, entry.Department, entry.Action, entry.Description)
			}
			return w.Flush()
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to print (0 for all)")
	activity.AddCommand(searchCmd)
	return activity
}

func defaultersCmd(open opener) *cobra.Command {
	var (
		month string
		year  int
	)
	cmd := &cobra.Command{
		Use:   "defaulters",
		Short: "List users who have not filed a DMAX report for the month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()

			users, period, err := admin.New(e.store, admin.Options{}).Defaulters(e.actor, admin.Period{Month: month, Year: year})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d defaulter(s) for %s %d\n", len(users), period.Month, period.Year)
			return printUsers(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month name (defaults to the current month)")
	cmd.Flags().IntVar(&year, "year", 0, "Year (defaults to the current year)")
	return cmd
}

func ledgerCmd(open opener) *cobra.Command {
	var (
		format     string
		out        string
		department string
	)
	ledger := &cobra.Command{Use: "ledger", Short: "Compliance ledger"}
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the executive compliance ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, ok := export.ParseFormat(format)
			if !ok {
				return fmt.Errorf("format must be pdf, docx or html")
			}
			dept := store.Department(department)
			if dept != "" && !dept.Valid() {
				return fmt.Errorf("unknown department %q", department)
			}

			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()

			result, err := export.NewService(e.store, e.catalog, export.Options{}).
				Export(cmd.Context(), e.actor, export.Request{Format: f, Department: dept})
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(result.Data))
			return nil
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "pdf", "pdf, docx or html")
	exportCmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to the generated name)")
	exportCmd.Flags().StringVar(&department, "department", "", "Limit the ledger to one department")
	ledger.AddCommand(exportCmd)
	return ledger
}

func historyCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "history <collection>",
		Short:     "Show the commits that changed a collection (git backend only)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: store.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validKey(args[0]) {
				return fmt.Errorf("unknown collection %q; expected one of %v", args[0], store.Keys)
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()
			if e.backend.Ledger == nil {
				return errors.New("history needs PORTAL_SNAPSHOT_BACKEND=git")
			}

			revisions, err := e.backend.Ledger.History(args[0], limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMMIT\tTIME\tAUTHOR\tMESSAGE")
			for _, rev := range revisions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortHash(rev.Hash), rev.CreatedAt.Format(time.RFC3339), rev.Author, rev.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum commits to show (0 for all)")
	return cmd
}

func printUsers(out io.Writer, users []store.User) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tDEPARTMENT\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Name, u.Email, u.Role, u.Department, u.IsActive)
	}
	return w.Flush()
}

func validKey(key string) bool {
	for _, k := range store.Keys {
		if k == key {
			return true
		}
	}
	return false
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
