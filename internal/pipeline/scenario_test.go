package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage/memory"
)

func TestDemoScenario_ValidatesAndPlans(t *testing.T) {
	ctx := context.Background()
	scenario := DemoScenario()

	ledger := memory.NewLedgerStore()
	static := chain.NewStatic()
	owner := fixtureAddress("owner")
	library := fixtureAddress("library")

	if err := scenario.Stage(ctx, ledger, static, owner, library); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	engine := splitter.New(splitter.Options{
		Logger:    zerolog.Nop(),
		Library:   library,
		Owner:     owner,
		Processor: fixtureAddress("processor"),
		Ledger:    ledger,
		Policies:  memory.NewPolicyStore(),
		Code:      static,
		Ratios:    static,
	})

	if err := engine.UpdateConfig(ctx, owner, scenario.Policy); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	res, err := engine.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// 60%+40% of 1e9 USDC, 5e8 native fixed, half of 4e9 via the oracle.
	if got, want := res.Total.Uint64(), uint64(3_500_000_000); got != want {
		t.Errorf("total: got %d, want %d", got, want)
	}
	if len(res.Transfers) != 4 {
		t.Fatalf("transfers: got %d, want 4", len(res.Transfers))
	}
	if got := res.Transfers[0].Amount.Uint64(); got != 600_000_000 {
		t.Errorf("first transfer: got %d, want 600000000", got)
	}
}

func TestDemoScenario_PlanLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	scenario := DemoScenario()

	ledger := memory.NewLedgerStore()
	static := chain.NewStatic()
	owner := fixtureAddress("owner")
	library := fixtureAddress("library")

	if err := scenario.Stage(ctx, ledger, static, owner, library); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	engine := splitter.New(splitter.Options{
		Logger:    zerolog.Nop(),
		Library:   library,
		Owner:     owner,
		Processor: fixtureAddress("processor"),
		Ledger:    ledger,
		Policies:  memory.NewPolicyStore(),
		Code:      static,
		Ratios:    static,
	})
	if err := engine.UpdateConfig(ctx, owner, scenario.Policy); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if _, err := engine.Plan(ctx); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for token, want := range scenario.Balances {
		got, err := ledger.BalanceOf(ctx, scenario.Policy.InputAccount, token)
		if err != nil {
			t.Fatalf("BalanceOf %s: %v", token, err)
		}
		if got.Cmp(want) != 0 {
			t.Errorf("balance of %s changed: got %s, want %s", token, got.Dec(), want.Dec())
		}
	}
}

func TestLoadScenario(t *testing.T) {
	treasury := fixtureAddress("treasury")
	input := fixtureAddress("input")
	oracle := fixtureAddress("oracle")

	raw := `{
		"policy": {
			"input_account": "` + input.String() + `",
			"rules": [
				{"output_account": "` + treasury.String() + `", "token": "native", "type": "FIXED_AMOUNT", "amount": "1500"},
				{"output_account": "` + treasury.String() + `", "token": "` + fixtureUSDC.String() + `", "type": "DYNAMIC_RATIO", "oracle": {"address": "` + oracle.String() + `"}}
			]
		},
		"balances": {"native": "9000"},
		"oracles": [{"address": "` + oracle.String() + `", "ratio": "250000000000000000"}]
	}`

	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if s.Policy.InputAccount != input {
		t.Errorf("input account: got %s", s.Policy.InputAccount)
	}
	if len(s.Policy.Rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(s.Policy.Rules))
	}
	if s.Policy.Rules[0].Type != domain.SplitFixedAmount || s.Policy.Rules[0].Amount.Uint64() != 1500 {
		t.Errorf("rule 0: got %+v", s.Policy.Rules[0])
	}
	if s.Policy.Rules[1].Oracle == nil || s.Policy.Rules[1].Oracle.Address != oracle {
		t.Errorf("rule 1 oracle: got %+v", s.Policy.Rules[1].Oracle)
	}
	if got := s.Balances[domain.TokenNative]; got == nil || got.Uint64() != 9000 {
		t.Errorf("native balance: got %v", got)
	}
	if len(s.Oracles) != 1 || s.Oracles[0].Ratio.Uint64() != 250_000_000_000_000_000 {
		t.Errorf("oracles: got %+v", s.Oracles)
	}
}

func TestLoadScenario_BadAmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	raw := `{"policy": {"rules": []}, "balances": {"native": "abc"}}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	if _, err := LoadScenario(path); err == nil {
		t.Fatal("expected error for non-decimal balance")
	}
}
