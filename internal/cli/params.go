package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var stopLossCmd = &cobra.Command{
	Use:   "stoploss <symbol> <price>",
	Short: "Move the stop-loss of an open position",
	Args:  cobra.ExactArgs(2),
	RunE:  runStopLoss,
}

var targetCmd = &cobra.Command{
	Use:   "target <symbol> <price>",
	Short: "Move the profit target of an open position",
	Args:  cobra.ExactArgs(2),
	RunE:  runTarget,
}

var autoExitCmd = &cobra.Command{
	Use:   "autoexit <trade-id> <on|off>",
	Short: "Toggle auto-exit for a trade",
	Args:  cobra.ExactArgs(2),
	RunE:  runAutoExit,
}

func init() {
	rootCmd.AddCommand(stopLossCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(autoExitCmd)
}

func runStopLoss(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("price %q is not a number", args[1])
	}

	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().ChangeStopLoss(ctx, args[0], value)
	if err != nil {
		return err
	}
	return printResult(res)
}

func runTarget(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("price %q is not a number", args[1])
	}

	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().ChangeTarget(ctx, args[0], value)
	if err != nil {
		return err
	}
	return printResult(res)
}

func runAutoExit(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[1] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("state %q must be on or off", args[1])
	}

	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().ToggleAutoExit(ctx, args[0], enabled)
	if err != nil {
		return err
	}
	return printResult(res)
}
