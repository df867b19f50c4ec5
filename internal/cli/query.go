package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutuledger/internal/domain"
)

func init() {
	balanceCmd.Flags().IntVar(&balanceEntries, "entries", 0, "Also list the N most recent postings")
	configCmd.Flags().BoolVar(&configHistory, "history", false, "List applied changes instead")
	configCmd.Flags().BoolVar(&configSchema, "schema", false, "List governable parameters and bounds")
	proposalCmd.Flags().StringVar(&proposalStatus, "status", "", "Filter the list by status")
	eventsCmd.Flags().Int64Var(&eventsCursor, "cursor", 0, "Start after this sequence number")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to list")

	rootCmd.AddCommand(balanceCmd, treasuryCmd, configCmd, proposalCmd, taskCmd,
		diagnosticsCmd, eventsCmd, fingerprintCmd)
}

var (
	balanceEntries int
	configHistory  bool
	configSchema   bool
	proposalStatus string
	eventsCursor   int64
	eventsLimit    int
)

var balanceCmd = &cobra.Command{
	Use:   "balance [ACCOUNT]",
	Short: "Show an account balance and reputation (default: this node)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		account, err := accountArg(args)
		if err != nil {
			return err
		}
		acct, err := c.Balance(cmd.Context(), account)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(acct)
		}
		fmt.Printf("Account:    %s\n", acct.OwnerID)
		fmt.Printf("Balance:    %d SP\n", acct.BalanceSP)
		fmt.Printf("Reputation: %d\n", acct.Reputation)

		if balanceEntries <= 0 {
			return nil
		}
		entries, err := c.Entries(cmd.Context(), account, balanceEntries)
		if err != nil {
			return err
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CLOCK\tTYPE\tSIDE\tAMOUNT\tBALANCE\tTASK")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", e.Clock, e.Type, e.EntryType, e.Amount, e.Balance, e.TaskID)
		}
		return w.Flush()
	},
}

var treasuryCmd = &cobra.Command{
	Use:   "treasury CHANNEL",
	Short: "Show a channel treasury",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		t, err := c.Treasury(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(t)
		}
		fmt.Printf("%s: %d SP\n", domain.TreasuryAccount(t.ChannelID), t.BalanceSP)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the active governable configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		switch {
		case configSchema:
			schema, err := c.Schema(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(schema)
			}
			fmt.Fprintln(w, "KEY\tKIND\tMIN\tMAX\tDEFAULT\tCATEGORY")
			for _, p := range schema {
				fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%s\t%s\n", p.Key, p.Kind, p.Min, p.Max, p.Default, p.Category)
			}
		case configHistory:
			hist, err := c.ConfigHistory(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(hist)
			}
			if len(hist) == 0 {
				fmt.Println("No config changes applied.")
				return nil
			}
			fmt.Fprintln(w, "VERSION\tKEY\tOLD\tNEW\tPROPOSAL\tAT")
			for _, ch := range hist {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", ch.Version, ch.Key, ch.OldValue, ch.NewValue,
					ch.ProposalID, time.UnixMilli(ch.UpdatedAt).UTC().Format("2006-01-02 15:04"))
			}
		default:
			cfg, err := c.Config(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cfg)
			}
			fmt.Printf("Version: %d\n\n", cfg.Version)
			schema, err := c.Schema(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, p := range schema {
				fmt.Fprintf(w, "%s\t%s\n", p.Key, cfg.Parameters[p.Key])
			}
		}
		return w.Flush()
	},
}

var proposalCmd = &cobra.Command{
	Use:     "proposal [ID]",
	Aliases: []string{"proposals"},
	Short:   "Show a proposal, or list proposals",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			list, err := c.Proposals(cmd.Context(), domain.ProposalStatus(proposalStatus))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tVOTES\tTITLE")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Type, p.Status, len(p.Votes), p.Title)
			}
			return w.Flush()
		}

		p, err := c.Proposal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(p)
		}
		fmt.Printf("ID:      %s\n", p.ID)
		fmt.Printf("Title:   %s\n", p.Title)
		fmt.Printf("Type:    %s\n", p.Type)
		fmt.Printf("Status:  %s\n", p.Status)
		if p.Type == domain.ProposalConfigChange && p.Value != nil {
			fmt.Printf("Change:  %s = %s\n", p.Key, *p.Value)
		}
		fmt.Printf("Votes:   %d (log base %g, config v%d)\n", len(p.Votes), p.LogBase, p.OpenedConfigVersion)
		if t := p.Tally; t != nil {
			fmt.Printf("Tally:   yes %d / no %d (micro-weight) -> %s\n", t.YesWeight, t.NoWeight, t.Outcome)
		}
		if r := p.ExecutionResult; r != nil {
			if r.Success {
				fmt.Printf("Applied: config v%d\n", r.Version)
			} else {
				fmt.Printf("Failed:  %s\n", r.Reason)
			}
		}
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:     "task [ID]",
	Aliases: []string{"tasks"},
	Short:   "Show a task, or list tasks",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			list, err := c.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCHANNEL\tSTATUS\tREWARD\tTAX\tASSIGNEE")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%s\n", t.ID, t.Channel, t.Status, t.Reward, t.TaxRate, short(t.Assignee))
			}
			return w.Flush()
		}

		t, err := c.Task(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(t)
		}
		fmt.Printf("ID:       %s\n", t.ID)
		fmt.Printf("Channel:  %s\n", t.Channel)
		fmt.Printf("Status:   %s\n", t.Status)
		fmt.Printf("Reward:   %d SP (tax %g)\n", t.Reward, t.TaxRate)
		fmt.Printf("Creator:  %s\n", t.Creator)
		if t.Assignee != "" {
			fmt.Printf("Assignee: %s\n", t.Assignee)
		}
		return nil
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List events derivation skipped, parked or evicted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		diags, err := c.Diagnostics(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(diags)
		}
		if len(diags) == 0 {
			fmt.Println("No diagnostics.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tCHANNEL\tTYPE\tKIND\tREASON")
		for _, d := range diags {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.EventID, d.Channel, d.Type, d.Kind, d.Reason)
		}
		return w.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events CHANNEL",
	Short: "List a channel's events in local arrival order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		page, err := c.EventsSince(cmd.Context(), args[0], eventsCursor, eventsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(page)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tCLOCK\tTYPE\tAUTHOR\tID")
		for _, se := range page.Events {
			ev := se.Event
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", se.Seq, ev.Clock, ev.Type, short(ev.Author), ev.ID)
		}
		return w.Flush()
	},
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the derived state digest to compare with other nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nodeClient()
		if err != nil {
			return err
		}
		fp, err := c.Fingerprint(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(fp)
		}
		fmt.Printf("State:     %s\n", fp.State)
		fmt.Printf("Event set: %s (%d events)\n", fp.EventSet, fp.Events)
		fmt.Printf("Config:    v%d\n", fp.ConfigVersion)
		return nil
	},
}

// accountArg returns args[0] or this node's own account id.
func accountArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	kp, err := nodeKeypair()
	if err != nil {
		return "", err
	}
	return kp.PublicKeyHex(), nil
}

// short abbreviates hex account ids for tables.
func short(id string) string {
	if len(id) > 16 {
		return id[:16] + "…"
	}
	return id
}
