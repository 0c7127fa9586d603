package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tradedesk/pkg/tradedesk"
)

var buyCmd = &cobra.Command{
	Use:   "buy <symbol> <quantity>",
	Short: "Open a new position",
	Args:  cobra.ExactArgs(2),
	RunE:  runBuy,
}

var sellCmd = &cobra.Command{
	Use:   "sell <symbol>",
	Short: "Exit the full open position for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runSell,
}

var adjustCmd = &cobra.Command{
	Use:   "adjust <symbol> <quantity>",
	Short: "Increase or decrease the open quantity",
	Long: `Adjust changes the open quantity of a position without closing it.
The direction flag selects increase or decrease; a decrease must leave
some quantity open (use sell for a full exit).`,
	Args: cobra.ExactArgs(2),
	RunE: runAdjust,
}

var adjustDirection string

func init() {
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(adjustCmd)

	adjustCmd.Flags().StringVarP(&adjustDirection, "direction", "d", "increase",
		"increase or decrease")
}

func runBuy(cmd *cobra.Command, args []string) error {
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("quantity %q is not a number", args[1])
	}

	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().Buy(ctx, args[0], qty)
	if err != nil {
		return err
	}
	return printResult(res)
}

func runSell(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().Sell(ctx, args[0])
	if err != nil {
		return err
	}
	return printResult(res)
}

func runAdjust(cmd *cobra.Command, args []string) error {
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("quantity %q is not a number", args[1])
	}

	ctx, cancel := cmdContext()
	defer cancel()
	res, err := client().Adjust(ctx, args[0], qty, adjustDirection)
	if err != nil {
		return err
	}
	return printResult(res)
}

// printResult prints the server's answer and fails the command when the
// operation was refused.
func printResult(res tradedesk.Result) error {
	fmt.Printf("[%s] %s\n", res.Status, res.Message)
	if res.Status == "error" {
		return fmt.Errorf("operation refused")
	}
	return nil
}
