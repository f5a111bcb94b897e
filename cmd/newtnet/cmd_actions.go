package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtnet/pkg/audit"
	"github.com/newtron-network/newtnet/pkg/cli"
	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
)

func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the networking action journal",
	}
	cmd.AddCommand(newActionsListCmd(), newActionsAuditCmd())
	return cmd
}

func newActionsListCmd() *cobra.Command {
	var filter model.ActionFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		Long: `List journal entries in processing order.

ERROR entries are actions a switch rejected; they are never retried.

Examples:
  newtnet actions list --status PENDING
  newtnet actions list --switch sw0 --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = model.ActionStatus(strings.ToUpper(status))
			switch filter.Status {
			case "", model.StatusPending, model.StatusDone, model.StatusError:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			ctx := context.Background()
			st, err := openStore(ctx, app.settings.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			actions, labels, err := listActions(ctx, st, filter)
			if err != nil {
				return err
			}

			if app.jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(actions)
			}
			if len(actions) == 0 {
				fmt.Println("No actions found")
				return nil
			}
			t := cli.NewTable("ID", "TYPE", "STATUS", "SWITCH", "PORT", "NIC", "CHANNEL", "NETWORK", "CREATED")
			for i := range actions {
				t.Row(actionRow(&actions[i], labels[actions[i].ID])...)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, DONE, ERROR)")
	cmd.Flags().StringVar(&filter.Switch, "switch", "", "Filter by switch label")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "Maximum entries to show (0 for all)")
	return cmd
}

// listActions reads the journal and resolves the switch label of each action.
func listActions(ctx context.Context, st store.Store, filter model.ActionFilter) ([]model.NetworkingAction, map[int64]string, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	actions, err := tx.ListActions(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	switchLabels := map[int64]string{}
	labels := make(map[int64]string, len(actions))
	for _, a := range actions {
		if a.NIC.Port == nil {
			continue
		}
		id := a.NIC.Port.SwitchID
		label, ok := switchLabels[id]
		if !ok {
			sw, err := tx.Switch(ctx, id)
			if err != nil && !store.IsNotFound(err) {
				return nil, nil, err
			}
			if sw != nil {
				label = sw.Label
			}
			switchLabels[id] = label
		}
		labels[a.ID] = label
	}
	return actions, labels, nil
}

func actionRow(a *model.NetworkingAction, switchLabel string) []string {
	port := "-"
	if a.NIC.Port != nil {
		port = a.NIC.Port.Label
	}
	if switchLabel == "" {
		switchLabel = "-"
	}
	channel := a.Channel
	if channel == "" {
		channel = "-"
	}
	created := "-"
	if !a.CreatedAt.IsZero() {
		created = a.CreatedAt.Local().Format("2006-01-02 15:04:05")
	}
	return []string{
		strconv.FormatInt(a.ID, 10),
		string(a.Type),
		cli.Status(string(a.Status)),
		switchLabel,
		port,
		a.NIC.Node + "/" + a.NIC.Label,
		channel,
		networkName(a.Network),
		created,
	}
}

func networkName(n *model.Network) string {
	if n == nil {
		return "-"
	}
	if n.Label == "" {
		return n.NetworkID
	}
	return fmt.Sprintf("%s (%s)", n.Label, n.NetworkID)
}

func newActionsAuditCmd() *cobra.Command {
	var filter audit.Filter
	var last string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail of processed actions",
		Long: `Show the audit trail of processed actions.

Examples:
  newtnet actions audit --switch sw0
  newtnet actions audit --last 24h --failures`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.settings.Audit.Path
			if path == "" {
				return fmt.Errorf("audit trail is disabled (audit.path is empty)")
			}
			if last != "" {
				d, err := time.ParseDuration(last)
				if err != nil {
					return fmt.Errorf("invalid duration: %s", last)
				}
				filter.StartTime = time.Now().Add(-d)
			}

			events, err := audit.ReadTrail(path, filter)
			if err != nil {
				return fmt.Errorf("querying audit log: %w", err)
			}

			if app.jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(events)
			}
			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}
			t := cli.NewTable("TIMESTAMP", "ACTION", "TYPE", "SWITCH", "PORT", "CHANNEL", "NETWORK", "STATUS", "DURATION", "ERROR")
			for _, e := range events {
				network := e.Network
				if network == "" {
					network = "-"
				}
				t.Row(
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					strconv.FormatInt(e.ActionID, 10),
					string(e.Type),
					e.Switch,
					e.Port,
					e.Channel,
					network,
					cli.Status(string(e.Status)),
					e.Duration.Round(time.Millisecond).String(),
					e.Error,
				)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Switch, "switch", "", "Filter by switch label")
	cmd.Flags().StringVar(&filter.NIC, "nic", "", "Filter by NIC label")
	cmd.Flags().StringVar(&last, "last", "", "Show events from the last duration (e.g., 24h)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "Maximum events to show")
	cmd.Flags().BoolVar(&filter.FailureOnly, "failures", false, "Show only failed actions")
	return cmd
}
