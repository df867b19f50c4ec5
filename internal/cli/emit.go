package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutuledger/internal/api"
	"github.com/tutu-network/tutuledger/internal/app/eventstore"
	"github.com/tutu-network/tutuledger/internal/domain"
)

var (
	emitChannel     string
	sendMemo        string
	taskTitle       string
	taskFromTreas   bool
	progressNote    string
	cancelReason    string
	proposeKey      string
	proposeValue    string
	proposeDescribe string
)

func init() {
	sendCmd.Flags().StringVar(&sendMemo, "memo", "", "Free-form memo")
	taskCreateCmd.Flags().StringVar(&taskTitle, "title", "", "Task title")
	taskCreateCmd.Flags().BoolVar(&taskFromTreas, "treasury", false, "Fund the reward from the channel treasury")
	taskProgressCmd.Flags().StringVar(&progressNote, "note", "", "Progress note")
	taskCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")
	proposeCmd.Flags().StringVar(&proposeKey, "key", "", "Governable parameter to change (config_change)")
	proposeCmd.Flags().StringVar(&proposeValue, "value", "", "New parameter value (config_change)")
	proposeCmd.Flags().StringVar(&proposeDescribe, "description", "", "Longer description")

	for _, c := range []*cobra.Command{sendCmd, taskCreateCmd, taskClaimCmd, taskProgressCmd,
		taskCompleteCmd, taskCancelCmd, proposeCmd, voteCmd, closeCmd} {
		c.Flags().StringVar(&emitChannel, "channel", domain.DefaultChannel, "Channel to emit on")
		rootCmd.AddCommand(c)
	}
}

// emit signs an event with the node keypair at a clock the node reserves
// for it and submits it.
func emit(cmd *cobra.Command, typ domain.EventType, payload any) error {
	c, err := nodeClient()
	if err != nil {
		return err
	}
	kp, err := nodeKeypair()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	clock, err := c.NextClock(ctx)
	if err != nil {
		return err
	}
	ev, err := eventstore.Compose(kp, emitChannel, typ, payload, clock, time.Now())
	if err != nil {
		return err
	}
	res, err := c.Submit(ctx, ev)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	if res.Status == domain.AcceptRejected {
		return fmt.Errorf("event %s rejected: %s", ev.ID, res.Reason)
	}
	fmt.Printf("%s %s %s (clock %d)\n", res.Status, typ, ev.ID, ev.Clock)
	return nil
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return v, nil
}

var sendCmd = &cobra.Command{
	Use:   "send TO AMOUNT",
	Short: "Transfer SP to an account or a channel treasury",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		return emit(cmd, domain.EventTransaction, domain.TransactionPayload{To: args[0], Amount: amount, Memo: sendMemo})
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "task-create ID REWARD",
	Short: "Create a task and escrow its reward",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reward, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		p := domain.TaskCreatedPayload{TaskID: args[0], Reward: reward, Title: taskTitle}
		if taskFromTreas {
			p.Creator = domain.TreasuryAccount(emitChannel)
		}
		return emit(cmd, domain.EventTaskCreated, p)
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "task-claim ID",
	Short: "Claim a task as its assignee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, domain.EventTaskClaimed, domain.TaskClaimedPayload{TaskID: args[0]})
	},
}

var taskProgressCmd = &cobra.Command{
	Use:   "task-progress ID",
	Short: "Mark a claimed task in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, domain.EventTaskProgressed, domain.TaskProgressedPayload{TaskID: args[0], Note: progressNote})
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "task-complete ID",
	Short: "Complete a task and release its reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, domain.EventTaskCompleted, domain.TaskCompletedPayload{TaskID: args[0]})
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "task-cancel ID",
	Short: "Cancel a task and refund its escrow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, domain.EventTaskCancelled, domain.TaskCancelledPayload{TaskID: args[0], Reason: cancelReason})
	},
}

var proposeCmd = &cobra.Command{
	Use:   "propose ID TITLE",
	Short: "Open a governance proposal (config_change with --key and --value)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := domain.ProposalCreatedPayload{
			ProposalID:  args[0],
			Kind:        domain.ProposalGeneric,
			Title:       args[1],
			Description: proposeDescribe,
		}
		if proposeKey != "" || proposeValue != "" {
			c, err := nodeClient()
			if err != nil {
				return err
			}
			v, err := parseParamValue(cmd, c, proposeKey, proposeValue)
			if err != nil {
				return err
			}
			p.Kind = domain.ProposalConfigChange
			p.Key = proposeKey
			p.Value = &v
		}
		return emit(cmd, domain.EventProposalCreated, p)
	},
}

// parseParamValue reads raw as the kind the node's schema declares for key.
func parseParamValue(cmd *cobra.Command, c *api.Client, key, raw string) (domain.ParamValue, error) {
	if key == "" || raw == "" {
		return domain.ParamValue{}, fmt.Errorf("config_change needs both --key and --value")
	}
	schema, err := c.Schema(cmd.Context())
	if err != nil {
		return domain.ParamValue{}, err
	}
	for _, p := range schema {
		if p.Key != key {
			continue
		}
		switch p.Kind {
		case domain.ParamInt:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return domain.ParamValue{}, fmt.Errorf("%s is an int parameter: %w", key, err)
			}
			return domain.IntValue(v), nil
		default:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return domain.ParamValue{}, fmt.Errorf("%s is a float parameter: %w", key, err)
			}
			return domain.FloatValue(v), nil
		}
	}
	return domain.ParamValue{}, fmt.Errorf("%w: %q", domain.ErrUnknownParam, key)
}

var voteCmd = &cobra.Command{
	Use:   "vote ID yes|no",
	Short: "Cast or replace this node's ballot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		choice := domain.VoteChoice(args[1])
		if choice != domain.VoteYes && choice != domain.VoteNo {
			return fmt.Errorf("choice must be yes or no, got %q", args[1])
		}
		return emit(cmd, domain.EventVoteCast, domain.VoteCastPayload{ProposalID: args[0], Choice: choice})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close voting, tally and execute the proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, domain.EventProposalClosed, domain.ProposalClosedPayload{ProposalID: args[0]})
	},
}
