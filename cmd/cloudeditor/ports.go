package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/cloudeditor/internal/agent"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "ports",
		Short:        "List attached serial ports",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := agent.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PORT\tDEVICE")
			for _, d := range agent.Devices(ports) {
				fmt.Fprintf(tw, "%s\t%s\n", d.PortName, d.Name)
			}
			return tw.Flush()
		},
	}
}
