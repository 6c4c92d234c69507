package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/session"
	"github.com/AvaProtocol/ap-bundler/model"
)

var (
	statusAccount string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Display bundler status",
		Long:  `Display the stored settings and recent submissions of the bundler database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📊 Bundler Status Report\n")
			fmt.Fprintf(out, "======================\n\n")

			l, err := openLocal(statusAccount)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to open storage: %v\n", err)
				fmt.Fprintf(out, "   💡 Stop a running bundler first, badger allows a single process\n")
				return err
			}
			defer l.Close()
			fmt.Fprintf(out, "💾 Using database path: %s\n\n", l.db.DbPath())

			return writeStatus(out, l)
		},
	}
)

func writeStatus(out io.Writer, l *local) error {
	if err := l.requireAccount(); err != nil {
		accounts, lerr := l.db.ListKeys("s:")
		if lerr != nil {
			return lerr
		}
		fmt.Fprintf(out, "👛 Accounts with stored settings: %d\n", len(accounts))
		for _, key := range accounts {
			fmt.Fprintf(out, "   %s\n", strings.TrimPrefix(key, "s:"))
		}
		fmt.Fprintf(out, "\n💡 Pass --account to see one account in detail\n")
		return nil
	}

	current := l.settingsStore().Snapshot()
	fmt.Fprintf(out, "👛 Account %s\n", l.account.Hex())
	fmt.Fprintf(out, "   sponsored: %t\n", current.Sponsored)
	fmt.Fprintf(out, "   wrap policy: %s\n", current.Policy())
	fmt.Fprintf(out, "   wrap amount: %s\n\n", formatFee(current.WrapAmountOrZero(), l.cfg.Contracts.FeeToken))

	count, err := session.SubmissionCount(l.db, l.account)
	if err != nil {
		return err
	}
	records, err := session.ListSubmissions(l.db, l.account, 5)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📋 Submissions: %d\n", count)
	for i, r := range records {
		fmt.Fprintf(out, "   %d. %s %-12s %s\n", i+1, r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcome, strings.Join(labels(r), ","))
		if r.Error != "" {
			fmt.Fprintf(out, "      %s\n", r.Error)
		}
	}
	if count == 0 {
		fmt.Fprintf(out, "   ✅ Submit a bundle with `ap-bundler submit` or POST /submit\n")
	}
	return nil
}

func labels(r *session.SubmissionRecord) []string {
	return lo.Map(r.Calls, func(l model.CallLabel, _ int) string { return string(l) })
}

var (
	submissionsAccount string
	submissionsLimit   int

	submissionsCmd = &cobra.Command{
		Use:   "submissions",
		Short: "List past submissions of an account as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLocal(submissionsAccount)
			if err != nil {
				return err
			}
			defer l.Close()
			if err := l.requireAccount(); err != nil {
				return err
			}

			records, err := session.ListSubmissions(l.db, l.account, submissionsLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}
)

func init() {
	addAccountFlag(statusCmd, &statusAccount)
	rootCmd.AddCommand(statusCmd)

	addAccountFlag(submissionsCmd, &submissionsAccount)
	submissionsCmd.Flags().IntVarP(&submissionsLimit, "limit", "n", 20, "number of records, newest first")
	rootCmd.AddCommand(submissionsCmd)
}
