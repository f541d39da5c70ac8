// Package cli is the instructor's command line: imports, class setup,
// issuing links and pulling results.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/safetytest/internal/app"
	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/certificate"
	"github.com/mind-engage/safetytest/internal/config"
	"github.com/mind-engage/safetytest/internal/directory"
	"github.com/mind-engage/safetytest/internal/exam"
	"github.com/mind-engage/safetytest/internal/logging"
	"github.com/mind-engage/safetytest/internal/workflow"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type runner struct {
	envFile string
	app     *app.App
}

// open builds the app on first use; version does not need a database.
func (r *runner) open(ctx context.Context) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	cfg, err := config.Load(r.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, logging.New(cfg.LogLevel, string(config.ModeOffline)))
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

func (r *runner) close() {
	if r.app != nil {
		_ = r.app.Close()
		r.app = nil
	}
}

// withApp adapts a command body that needs the opened app.
func (r *runner) withApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := r.open(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd, a, args)
	}
}

func NewRootCmd() *cobra.Command {
	r := &runner{}
	root := &cobra.Command{
		Use:           "safetyctl",
		Short:         "Manage classroom safety tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			r.close()
		},
	}
	root.PersistentFlags().StringVar(&r.envFile, "env-file", ".env", "optional dotenv file")

	root.AddCommand(
		versionCmd(),
		migrateCmd(r),
		importBankCmd(r),
		importQuotaCmd(r),
		importPeopleCmd(r),
		importTemplateCmd(r),
		classCmd(r),
		registerCmd(r),
		issueCmd(r),
		resultsCmd(r),
		statsCmd(r),
		eventsCmd(r),
	)
	return root
}

// Execute runs the root command and closes whatever it opened.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "safetyctl", Version)
		},
	}
}

func migrateCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.Config.DBDriver)
			return nil
		}),
	}
}

func importBankCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import-bank FILE.csv",
		Short: "Replace the question bank from category,text,correct,a1,a2,a3,a4 rows",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			cats, err := readFile(args[0], exam.ReadBankCSV)
			if err != nil {
				return err
			}
			if err := a.Bank.PutBank(cmd.Context(), cats); err != nil {
				return err
			}
			n := 0
			for _, c := range cats {
				n += len(c.Questions)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions in %d categories\n", n, len(cats))
			return nil
		}),
	}
}

func importQuotaCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import-quota PROFILE FILE.csv",
		Short: "Replace a quota profile from category,count rows",
		Args:  cobra.ExactArgs(2),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			q, err := readFile(args[1], exam.ReadQuotaCSV)
			if err != nil {
				return err
			}
			if err := a.Bank.PutQuota(cmd.Context(), args[0], q); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s: %d categories, %d questions per test\n", args[0], len(q), q.Total())
			return nil
		}),
	}
}

func importPeopleCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import-people FILE.csv",
		Short: "Load the student directory from email,first_name,last_name,external_id rows",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			people, err := readFile(args[0], directory.ReadPeopleCSV)
			if err != nil {
				return err
			}
			if err := a.People.Put(cmd.Context(), people); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d people\n", len(people))
			return nil
		}),
	}
}

func importTemplateCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import-template NAME FILE.txt",
		Short: "Store a certificate template",
		Args:  cobra.ExactArgs(2),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			key, err := a.Blobs.Put(certificate.TemplatePrefix+args[0], f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return nil
		}),
	}
}

func classCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "class",
		Short: "Manage classes",
	}
	var (
		profile  string
		template string
		disabled bool
	)
	add := &cobra.Command{
		Use:   "add CODE",
		Short: "Create or update a class",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			q, err := a.Bank.LoadQuota(cmd.Context(), profile)
			if err != nil {
				return fmt.Errorf("class %s: %w", args[0], err)
			}
			if len(q) == 0 {
				return fmt.Errorf("class %s: %w: profile %q is empty", args[0], exam.ErrInvalidQuota, profile)
			}
			c := attempt.Class{Code: args[0], Enabled: !disabled, QuotaProfile: profile, CertificateTemplate: template}
			if err := a.Attempts.PutClass(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "class %s saved (enabled=%t, profile=%s)\n", c.Code, c.Enabled, c.QuotaProfile)
			return nil
		}),
	}
	add.Flags().StringVar(&profile, "profile", "default", "quota profile")
	add.Flags().StringVar(&template, "template", "", "certificate template name")
	add.Flags().BoolVar(&disabled, "disabled", false, "reject new registrations")
	cmd.AddCommand(add)
	return cmd
}

func registerCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "register CODE EMAIL",
		Short: "Register a student the same way the intake form does",
		Args:  cobra.ExactArgs(2),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			rec, err := a.Service.Register(cmd.Context(), workflow.RegisterRequest{ClassCode: args[0], Email: args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s as %s\n", rec.Email, rec.Key())
			return nil
		}),
	}
}

func issueCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "issue CODE",
		Short: "Email test links to everyone registered in a class",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			sum, err := a.Service.IssueClass(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "issued %d, skipped %d, mail failures %d\n", sum.Issued, sum.Skipped, sum.MailFailed)
			return nil
		}),
	}
}

func resultsCmd(r *runner) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "results CODE",
		Short: "Export a class's attempts as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			recs, err := a.Service.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return workflow.WriteResultsCSV(w, recs)
		}),
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output file")
	return cmd
}

func statsCmd(r *runner) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-question answer counts",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			stats, err := a.Service.BankStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tID\tANSWERED\tCORRECT")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Category, s.ID, s.TimesAnswered, s.TimesCorrect)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func eventsCmd(r *runner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the most recent event log entries",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			evs, err := a.Events.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range evs {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
