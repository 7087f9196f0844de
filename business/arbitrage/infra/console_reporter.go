// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dexkeep/keeperbot/business/arbitrage/app"
	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
)

const bannerWidth = 80

// ConsoleReporter implements app.Reporter for CLI output.
type ConsoleReporter struct {
	out io.Writer
}

var _ app.Reporter = (*ConsoleReporter)(nil)

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		out: os.Stdout,
	}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "Arbitrage Keeper Started")
	fmt.Fprintln(r.out, "========================")
	return nil
}

// ReportPlan outputs a freshly committed plan to the console.
func (r *ConsoleReporter) ReportPlan(plan *domain.Plan) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
	fmt.Fprintln(r.out, "EXECUTION PLAN COMMITTED")
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
	fmt.Fprintf(r.out, "Plan:           %s\n", plan.ID)
	fmt.Fprintf(r.out, "Created:        %s\n", plan.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Mode:           %s\n", plan.Mode)
	fmt.Fprintf(r.out, "Route:          %s\n", plan.Quote.Path.String())
	fmt.Fprintln(r.out, strings.Repeat("-", bannerWidth))
	fmt.Fprintln(r.out, "STEPS")
	for _, step := range plan.Steps {
		fmt.Fprintf(r.out, "  %d. %-44s %s -> %s\n",
			step.Index+1, step.Edge, step.Source, step.Target)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", bannerWidth))
	fmt.Fprintln(r.out, "PROFIT")
	base := plan.Quote.Path.Start().Symbol()
	fmt.Fprintf(r.out, "  Input:          %s %s\n", plan.Quote.Input, base)
	fmt.Fprintf(r.out, "  Output:         %s %s\n", plan.Quote.Output, base)
	fmt.Fprintf(r.out, "  Gas:            %s %s (%s native)\n",
		plan.Quote.Gas.Base, base, plan.Quote.Gas.Native.StringFixed(6))
	fmt.Fprintf(r.out, "  Net:            %s %s\n", plan.Quote.NetProfit, base)
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
}

// ReportOutcome outputs a finished plan to the console.
func (r *ConsoleReporter) ReportOutcome(plan *domain.Plan) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
	fmt.Fprintf(r.out, "PLAN %s\n", strings.ToUpper(string(plan.State)))
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
	fmt.Fprintf(r.out, "Plan:           %s\n", plan.ID)
	fmt.Fprintf(r.out, "Route:          %s\n", plan.Quote.Path.String())
	if plan.FailureReason != "" {
		fmt.Fprintf(r.out, "Reason:         %s\n", plan.FailureReason)
	}
	if !plan.FinishedAt.IsZero() {
		fmt.Fprintf(r.out, "Duration:       %s\n", plan.FinishedAt.Sub(plan.CreatedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(r.out, strings.Repeat("-", bannerWidth))
	fmt.Fprintln(r.out, "STEPS")
	for _, step := range plan.Steps {
		line := fmt.Sprintf("  %d. %-10s %s", step.Index+1, step.Status, step.Edge)
		if step.Status != domain.StepPending && step.Status != domain.StepSkipped {
			line += fmt.Sprintf("  tx %s", step.TxHash.Hex())
		}
		fmt.Fprintln(r.out, line)
	}
	fmt.Fprintln(r.out, strings.Repeat("=", bannerWidth))
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Arbitrage Keeper Stopped")
	return nil
}
