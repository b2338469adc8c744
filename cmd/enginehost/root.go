package main

import (
	"fmt"
	"strings"

	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"github.com/leandrodaf/enginedriver/sdk/engine"
	"github.com/spf13/cobra"
)

var (
	argMIDIBackend string

	rootCmd = &cobra.Command{
		Use:          "enginehost",
		Short:        "Real-time audio/MIDI engine host",
		SilenceUsage: true,
	}

	driversCmd = &cobra.Command{
		Use:   "drivers",
		Short: "List the audio back-ends available on this system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer engine.Shutdown()
			for _, name := range engine.DriverNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices <driver>",
		Short: "List the devices of an audio back-end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer engine.Shutdown()
			names, err := engine.DeviceNames(args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info <driver> <device>",
		Short: "Show the buffer sizes, sample rates and hints of a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer engine.Shutdown()
			info, err := engine.DeviceInfo(args[0], args[1])
			if err != nil {
				return err
			}
			printDeviceInfo(cmd, info)
			return nil
		},
	}

	midiCmd = &cobra.Command{
		Use:   "midi",
		Short: "List MIDI inputs and outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := engine.NewMIDIBackend(argMIDIBackend, logger.NewDevelopmentLogger(), "enginehost")
			if err != nil {
				return err
			}
			defer backend.Close()

			ins, err := backend.Inputs()
			if err != nil {
				return err
			}
			outs, err := backend.Outputs()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inputs (%s):\n", backend.Name())
			for _, in := range ins {
				fmt.Fprintf(out, "  %s [%s]\n", in.Name, in.Identifier)
			}
			fmt.Fprintf(out, "Outputs (%s):\n", backend.Name())
			for _, o := range outs {
				fmt.Fprintf(out, "  %s [%s]\n", o.Name, o.Identifier)
			}
			return nil
		},
	}
)

func init() {
	midiCmd.Flags().StringVarP(&argMIDIBackend, "backend", "b", "", "MIDI back-end (rtmidi, coremidi, winmm, virtual); empty selects the system one")

	rootCmd.AddCommand(driversCmd, devicesCmd, infoCmd, midiCmd, runCmd)
}

func printDeviceInfo(cmd *cobra.Command, info contracts.DriverDeviceInfo) {
	out := cmd.OutOrStdout()

	var hints []string
	if info.Hints.Has(contracts.HintVariableBufferSize) {
		hints = append(hints, "variable-buffer-size")
	}
	if info.Hints.Has(contracts.HintVariableSampleRate) {
		hints = append(hints, "variable-sample-rate")
	}
	if info.Hints.Has(contracts.HintHasControlPanel) {
		hints = append(hints, "control-panel")
	}
	fmt.Fprintf(out, "Hints:        %s\n", strings.Join(hints, ", "))

	var sizes []string
	for _, size := range info.BufferSizes {
		if size == 0 {
			break
		}
		sizes = append(sizes, fmt.Sprint(size))
	}
	fmt.Fprintf(out, "Buffer sizes: %s\n", strings.Join(sizes, " "))

	var rates []string
	for _, rate := range info.SampleRates {
		if rate == 0 {
			break
		}
		rates = append(rates, fmt.Sprint(rate))
	}
	fmt.Fprintf(out, "Sample rates: %s\n", strings.Join(rates, " "))
}
