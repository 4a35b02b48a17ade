// Package main runs an offline split dry-run: stage a scenario into memory
// stores and a static chain, validate the policy, and print the transfers a
// split would execute. No real backend is touched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/pipeline"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage/memory"
)

func main() {
	// Parse flags
	scenarioPath := flag.String("scenario", "", "Scenario file (JSON); omit for the built-in demo")
	flag.Parse()

	ctx := context.Background()

	// Load scenario
	var (
		scenario *pipeline.Scenario
		err      error
	)
	if *scenarioPath != "" {
		scenario, err = pipeline.LoadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
	} else {
		scenario = pipeline.DemoScenario()
		fmt.Println("No scenario file given, using built-in demo scenario")
	}

	owner, err := domain.NewAddress()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating owner address: %v\n", err)
		os.Exit(1)
	}
	library, err := domain.NewAddress()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating library address: %v\n", err)
		os.Exit(1)
	}

	// Stage into memory stores and a static chain
	ledger := memory.NewLedgerStore()
	policies := memory.NewPolicyStore()
	static := chain.NewStatic()
	if err := scenario.Stage(ctx, ledger, static, owner, library); err != nil {
		fmt.Fprintf(os.Stderr, "Error staging scenario: %v\n", err)
		os.Exit(1)
	}

	engine := splitter.New(splitter.Options{
		Logger:    zerolog.Nop(),
		Library:   library,
		Owner:     owner,
		Processor: owner,
		Ledger:    ledger,
		Policies:  policies,
		Code:      static,
		Ratios:    static,
	})

	// Validate: this is the dry-run verdict a live config update would give
	fmt.Println("=== Policy Validation ===")
	if err := engine.UpdateConfig(ctx, owner, scenario.Policy); err != nil {
		fmt.Printf("REJECTED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ACCEPTED: %d rules, input account %s\n", len(scenario.Policy.Rules), scenario.Policy.InputAccount)

	aggs, err := policies.GetTokenAggregates(ctx, library)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading aggregates: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n=== Token Aggregates ===")
	for _, a := range aggs {
		fmt.Printf("  %-44s  %-13s  rules=%d  ratio_sum=%s  amount_sum=%s\n",
			a.Token, a.Type, a.RuleCount, a.RatioSum.Dec(), a.AmountSum.Dec())
	}

	// Plan: per-rule amounts against the fixture balances
	res, err := engine.Plan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error planning split: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== Planned Transfers ===")
	if len(res.Transfers) == 0 {
		fmt.Println("  (none: all balances zero or all amounts rounded to zero)")
	}
	for _, tr := range res.Transfers {
		fmt.Printf("  %-44s  ->  %s  %s", tr.Token, tr.OutputAccount, tr.Amount.Dec())
		if tr.Ratio != nil {
			fmt.Printf("  (ratio %s)", tr.Ratio.Dec())
		}
		fmt.Println()
	}
	for _, sample := range res.Samples {
		if !sample.OK && !sample.Cached {
			fmt.Printf("  oracle %s soft-failed for %s, rule planned at zero\n", sample.Oracle, sample.Token)
		}
	}

	fmt.Printf("\nTotal to distribute: %s\n", res.Total.Dec())
}
