package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtnet/pkg/cli"
	"github.com/newtron-network/newtnet/pkg/deferred"
	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

func newSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Inspect switches",
	}
	cmd.AddCommand(
		newSwitchVerifyCmd(),
		newSwitchValidateCmd(),
		newSwitchPortNetworksCmd(),
		newSwitchConfigCmd(),
		newSwitchTypesCmd(),
	)
	return cmd
}

func newSwitchVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <switch>",
		Short: "Compare recorded attachments with the switch",
		Long: `Verify reads back every cabled port of a switch and compares the VLANs
found there with the network attachments recorded in the store.

Exits 2 when any port drifted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := newEnv(ctx, app.settings)
			if err != nil {
				return err
			}
			defer e.close()

			reports, err := e.processor.Verify(ctx, args[0])
			if err != nil {
				return err
			}

			if app.jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(reports); err != nil {
					return err
				}
			} else {
				printReports(args[0], reports)
			}
			for _, r := range reports {
				if !r.InSync() {
					return errDrift
				}
			}
			return nil
		},
	}
}

func printReports(label string, reports []deferred.PortReport) {
	if len(reports) == 0 {
		fmt.Printf("No cabled ports on %s\n", label)
		return
	}
	drifted := 0
	for _, r := range reports {
		status := cli.Green("ok")
		if !r.InSync() {
			status = cli.Red("drift")
			drifted++
		}
		fmt.Printf("  %s %s (%s)\n", cli.DotPad(r.Port, 24), status, r.NIC)
		for _, pn := range r.Missing {
			fmt.Printf("      missing %s vlan %s\n", pn.Channel, pn.VLAN)
		}
		for _, pn := range r.Extra {
			fmt.Printf("      extra   %s vlan %s\n", pn.Channel, pn.VLAN)
		}
	}
	fmt.Printf("\n%s: %d port(s), %d drifted\n", cli.Bold(label), len(reports), drifted)
}

// switchProblems is the outcome of validating one switch row.
type switchProblems struct {
	Switch   string   `json:"switch"`
	Type     string   `json:"type"`
	Problems []string `json:"problems,omitempty"`
}

func newSwitchValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [switch...]",
		Short: "Check switch configuration and port names",
		Long: `Validate checks every switch in the store, or only the named ones, against
its driver: required credentials, driver settings such as dummy_vlan, and the
interface naming of its ports. A switch that fails here is never contacted by
a drain pass; its actions end in ERROR.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, app.settings.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			results, err := validateSwitches(ctx, st, newRegistry(app.settings), args)
			if err != nil {
				return err
			}
			if app.jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if len(r.Problems) == 0 {
						fmt.Printf("  %s %s\n", cli.DotPad(r.Switch, 24), cli.Green("ok"))
						continue
					}
					fmt.Printf("  %s %s\n", cli.DotPad(r.Switch, 24), cli.Red("invalid"))
					for _, p := range r.Problems {
						fmt.Printf("      %s\n", p)
					}
				}
			}
			bad := 0
			for _, r := range results {
				if len(r.Problems) > 0 {
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d switch(es) misconfigured", bad, len(results))
			}
			return nil
		},
	}
}

// validateSwitches checks the named switches, or all of them when labels is
// empty.
func validateSwitches(ctx context.Context, st store.Store, reg *switches.Registry, labels []string) ([]switchProblems, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var sws []model.Switch
	if len(labels) == 0 {
		if sws, err = tx.ListSwitches(ctx); err != nil {
			return nil, err
		}
	}
	for _, label := range labels {
		sw, err := tx.SwitchByLabel(ctx, label)
		if err != nil {
			return nil, err
		}
		sws = append(sws, *sw)
	}

	results := make([]switchProblems, 0, len(sws))
	for _, sw := range sws {
		r := switchProblems{Switch: sw.Label, Type: sw.Type}
		if err := reg.Validate(sw); err != nil {
			r.Problems = append(r.Problems, problems(err)...)
		}
		bindings, err := tx.PortsForSwitch(ctx, sw.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			if err := reg.ValidatePortName(sw.Type, b.Port.Label); err != nil && !errors.Is(err, util.ErrNotFound) {
				r.Problems = append(r.Problems, problems(err)...)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// problems flattens a validation error into its messages.
func problems(err error) []string {
	var verr *util.ValidationError
	if errors.As(err, &verr) {
		return verr.Errors
	}
	return []string{err.Error()}
}

func newSwitchPortNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "port-networks <switch> <port>",
		Short: "Show the VLANs configured on a switch port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, app.settings.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			sw, err := lookupSwitch(ctx, st, args[0])
			if err != nil {
				return err
			}
			reg := newRegistry(app.settings)
			if err := reg.ValidatePortName(sw.Type, args[1]); err != nil {
				return err
			}

			nets, err := readPort(ctx, reg, *sw, args[1])
			if err != nil {
				return err
			}
			if app.jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(nets)
			}
			if len(nets) == 0 {
				fmt.Printf("No VLANs on %s %s\n", sw.Label, args[1])
				return nil
			}
			t := cli.NewTable("CHANNEL", "VLAN")
			var tagged []int
			for _, pn := range nets {
				t.Row(pn.Channel, pn.VLAN)
				if pn.Channel != model.ChannelNative {
					if id, err := strconv.Atoi(pn.VLAN); err == nil {
						tagged = append(tagged, id)
					}
				}
			}
			t.Flush()
			if len(tagged) > 0 {
				fmt.Printf("\nTagged: %s\n", util.CompactRange(tagged))
			}
			return nil
		},
	}
}

// lookupSwitch reads one switch row in a throwaway transaction.
func lookupSwitch(ctx context.Context, st store.Store, label string) (*model.Switch, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return tx.SwitchByLabel(ctx, label)
}

// readPort opens a session on sw just long enough to read one port.
func readPort(ctx context.Context, reg *switches.Registry, sw model.Switch, port string) ([]model.PortNetwork, error) {
	sess, err := reg.Open(ctx, sw)
	if err != nil {
		return nil, err
	}
	defer sess.Disconnect(context.WithoutCancel(ctx))

	reader, ok := sess.(switches.PortReader)
	if !ok {
		return nil, fmt.Errorf("switch type %s cannot read back port configuration", sw.Type)
	}
	return reader.PortNetworks(ctx, port)
}

func newSwitchConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <switch> [running|startup]",
		Short: "Print the switch configuration",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := switches.ConfigRunning
			if len(args) == 2 {
				k, err := switches.ParseConfigKind(args[1])
				if err != nil {
					return err
				}
				kind = k
			}

			ctx := context.Background()
			st, err := openStore(ctx, app.settings.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			sw, err := lookupSwitch(ctx, st, args[0])
			if err != nil {
				return err
			}
			config, err := readConfig(ctx, newRegistry(app.settings), *sw, kind)
			if err != nil {
				return err
			}
			fmt.Println(config)
			return nil
		},
	}
}

// readConfig opens a session on sw just long enough to dump its configuration.
func readConfig(ctx context.Context, reg *switches.Registry, sw model.Switch, kind switches.ConfigKind) (string, error) {
	sess, err := reg.Open(ctx, sw)
	if err != nil {
		return "", err
	}
	defer sess.Disconnect(context.WithoutCancel(ctx))

	reader, ok := sess.(switches.ConfigReader)
	if !ok {
		return "", fmt.Errorf("switch type %s cannot dump its configuration", sw.Type)
	}
	return reader.Config(ctx, kind)
}

func newSwitchTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported switch types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := newRegistry(app.settings)
			t := cli.NewTable("TYPE", "CAPABILITIES", "SAVE")
			for _, typ := range reg.Types() {
				caps, err := reg.Capabilities(typ)
				if err != nil {
					return err
				}
				names := make([]string, len(caps))
				for i, c := range caps {
					names[i] = string(c)
				}
				t.Row(typ, strings.Join(names, ","), fmt.Sprint(app.settings.ShouldSave(typ)))
			}
			t.Flush()
			return nil
		},
	}
}
