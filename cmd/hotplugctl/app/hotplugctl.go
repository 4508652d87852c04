/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type commandOptions struct {
	endpoint string
	timeout  time.Duration
	output   string
	governor string
}

// NewHotplugctlCommand builds the hotplugctl command tree on top of httpClient.
func NewHotplugctlCommand(httpClient *http.Client) *cobra.Command {
	o := &commandOptions{
		endpoint: consts.DefaultGenericEndpoint,
		timeout:  5 * time.Second,
		output:   outputText,
	}

	cmd := &cobra.Command{
		Use:           "hotplugctl",
		Short:         "Inspect and tune a running katalyst hotplug governor",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.output != outputText && o.output != outputJSON {
				return fmt.Errorf("unknown output format %q, expected %s or %s", o.output, outputText, outputJSON)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&o.endpoint, "endpoint", o.endpoint, "the generic endpoint of the governor")
	cmd.PersistentFlags().DurationVar(&o.timeout, "timeout", o.timeout, "the timeout of one request")
	cmd.PersistentFlags().StringVarP(&o.output, "output", "o", o.output, "output format, text or json")

	run := func(f func(ctx context.Context, c *Client, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			return f(ctx, NewClient(httpClient, o.endpoint), cmd.OutOrStdout(), args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the loop state, the online cores and the recent transitions",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *Client, out io.Writer, _ []string) error {
			status, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if o.output == outputJSON {
				return printJSON(out, status)
			}
			return printStatus(out, status)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tunable with its value",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *Client, out io.Writer, _ []string) error {
			infos, err := c.ListTunables(ctx)
			if err != nil {
				return err
			}
			if o.output == outputJSON {
				return printJSON(out, infos)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tVALUE\tMODE\tDESCRIPTION")
			for _, info := range infos {
				mode := lo.Ternary(info.Writable, "rw", "ro")
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Value, mode, info.Description)
			}
			return w.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Print the value of one tunable",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *Client, out io.Writer, args []string) error {
			info, err := c.GetTunable(ctx, args[0])
			if err != nil {
				return err
			}
			if o.output == outputJSON {
				return printJSON(out, info)
			}
			_, err = fmt.Fprintln(out, info.Value)
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Write one tunable, out of range values are clamped by the governor",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, c *Client, out io.Writer, args []string) error {
			info, err := c.SetTunable(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if o.output == outputJSON {
				return printJSON(out, info)
			}
			if strings.TrimSpace(args[1]) != info.Value {
				general.Warningf("%s clamped to %s", info.Name, info.Value)
			}
			_, err = fmt.Fprintf(out, "%s = %s\n", info.Name, info.Value)
			return err
		}),
	})

	eventCmd := &cobra.Command{
		Use:   "event NAME",
		Short: "Inject a lifecycle event: suspend-prepare, post-suspend, post-restore, reboot, screen-off, screen-on or governor-changed",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *Client, out io.Writer, args []string) error {
			eventType, err := lifecycle.ParseEventType(args[0])
			if err != nil {
				return err
			}
			if eventType == lifecycle.EventGovernorChanged && o.governor == "" {
				return fmt.Errorf("%s needs --governor", eventType)
			}
			if err := c.SendEvent(ctx, eventType, o.governor); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s sent\n", eventType)
			return err
		}),
	}
	eventCmd.Flags().StringVar(&o.governor, "governor", "", "the new cpufreq governor of a governor-changed event")
	cmd.AddCommand(eventCmd)

	return cmd
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func printStatus(out io.Writer, s *types.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "state:\t%s\n", s.LoopState)
	_, _ = fmt.Fprintf(w, "governor enabled:\t%v\n", s.GovernorEnabled)
	_, _ = fmt.Fprintf(w, "auto hotplug:\t%v (pinned %d)\n", s.AutoHotplug, s.PinnedCores)
	_, _ = fmt.Fprintf(w, "lock:\t%v (rebooting %v)\n", s.ManualLock, s.Rebooting)
	_, _ = fmt.Fprintf(w, "online:\t%s of %d\n", general.ConvertLinuxListToString(lo.Map(s.OnlineCPUs, func(cpu int, _ int) int64 { return int64(cpu) })), s.PossibleCores)
	_, _ = fmt.Fprintf(w, "interval:\t%s\n", s.Interval)
	_, _ = fmt.Fprintf(w, "last verdict:\t%s\n", s.LastVerdict)
	_, _ = fmt.Fprintf(w, "load:\tavg %d%%, core mean %.1f%%, core max %.1f%%\n", s.AverageLoad, s.MeanCoreLoad, s.MaxCoreLoad)
	_, _ = fmt.Fprintf(w, "clock:\t%d kHz [%d, %d]\n", s.Clock.Current, s.Clock.Min, s.Clock.Max)
	_, _ = fmt.Fprintf(w, "platform:\t%s %s\n", s.Platform.Profile, s.Platform.CPUBrand)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(s.Transitions) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(out, "\ntransitions:")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tCPU\tONLINE\tREASON\tRESULT")
	for _, t := range s.Transitions {
		result := lo.Ternary(t.Success, "ok", t.Error)
		_, _ = fmt.Fprintf(w, "%s\t%d\t%v\t%s\t%s\n", t.Time.Format(time.RFC3339Nano), t.CPU, t.Online, t.Reason, result)
	}
	return w.Flush()
}
