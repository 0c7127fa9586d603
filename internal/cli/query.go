package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <symbol>",
	Short: "Show the most recent order operation for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runTrades,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List closed positions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show the risk pool",
	Args:  cobra.NoArgs,
	RunE:  runRisk,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tradesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(riskCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum records to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()
	op, found, err := client().Status(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("no operation recorded for %s\n", args[0])
		return nil
	}

	fmt.Printf("%s %s: %s\n", op.Symbol, op.Kind, op.Status)
	if op.Message != "" {
		fmt.Printf("  %s\n", op.Message)
	}
	if op.OrderID != "" {
		fmt.Printf("  order: %s\n", op.OrderID)
	}
	fmt.Printf("  started: %s\n", op.StartedAt.Format("15:04:05"))
	if !op.FinishedAt.IsZero() {
		fmt.Printf("  finished: %s\n", op.FinishedAt.Format("15:04:05"))
	}
	return nil
}

func runTrades(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()
	trades, err := client().Trades(ctx)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Println("no open trades")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQTY\tENTRY\tSTOP\tTARGET\tBOOKED\tAUTO\tID")
	for _, t := range trades {
		auto := ""
		if t.AutoExit {
			auto = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%s\n",
			t.Symbol, t.CurrentQty, t.EntryPrice, t.StopLoss, t.Target, t.BookedPnL, auto, t.ID)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()
	hist, err := client().History(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		fmt.Println("no closed trades")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tENTRY\tEXIT\tPNL\tMAX QTY\tCLOSED")
	for _, h := range hist {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			h.Symbol, h.EntryPrice, h.ExitPrice, h.FinalPnL, h.HighestQty,
			h.ExitTime.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runRisk(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()
	pool, err := client().Risk(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("used:      %12.2f\n", pool.Used)
	fmt.Printf("available: %12.2f\n", pool.Available)
	fmt.Printf("combined:  %12.2f\n", pool.Combined)
	return nil
}
