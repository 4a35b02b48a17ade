package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Scenario describes one offline split dry-run: a candidate policy, the
// fixture balances of its input account, and the answers the demo oracles
// give. The plan command stages a scenario into memory stores and a static
// chain, then validates and plans without touching any real backend.
type Scenario struct {
	Policy   *domain.SplitPolicy
	Balances map[domain.Token]*uint256.Int
	Oracles  []ScenarioOracle
}

// ScenarioOracle registers one oracle program on the static chain. A nil
// Ratio registers the program without an answer, so dynamic rules resolve
// through the soft-fail path.
type ScenarioOracle struct {
	Address domain.Address
	Ratio   *uint256.Int
}

type scenarioJSON struct {
	Policy   scenarioPolicyJSON   `json:"policy"`
	Balances map[string]string    `json:"balances"`
	Oracles  []scenarioOracleJSON `json:"oracles,omitempty"`
}

type scenarioPolicyJSON struct {
	InputAccount string             `json:"input_account"`
	Rules        []scenarioRuleJSON `json:"rules"`
}

type scenarioRuleJSON struct {
	OutputAccount string                 `json:"output_account"`
	Token         string                 `json:"token"`
	Type          string                 `json:"type"`
	Amount        string                 `json:"amount,omitempty"`
	Ratio         string                 `json:"ratio,omitempty"`
	Oracle        *scenarioOracleRefJSON `json:"oracle,omitempty"`
}

type scenarioOracleRefJSON struct {
	Address string `json:"address"`
	Params  []byte `json:"params,omitempty"` // base64 on the wire
}

type scenarioOracleJSON struct {
	Address string `json:"address"`
	Ratio   string `json:"ratio,omitempty"`
}

// LoadScenario reads a scenario file. Addresses and amounts travel as
// base58 and decimal strings; empty address fields decode to zero values
// and fall through to policy validation, which owns the rejection strings.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var in scenarioJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	input, err := parseScenarioAddress(in.Policy.InputAccount)
	if err != nil {
		return nil, fmt.Errorf("policy input_account: %w", err)
	}
	s := &Scenario{
		Policy:   &domain.SplitPolicy{InputAccount: input},
		Balances: make(map[domain.Token]*uint256.Int, len(in.Balances)),
	}

	for i, r := range in.Policy.Rules {
		rule, err := scenarioRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		s.Policy.Rules = append(s.Policy.Rules, rule)
	}

	for token, amount := range in.Balances {
		v, err := domain.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token, err)
		}
		s.Balances[domain.Token(token)] = v
	}

	for i, o := range in.Oracles {
		addr, err := domain.ParseAddress(o.Address)
		if err != nil {
			return nil, fmt.Errorf("oracle %d: %w", i, err)
		}
		oracle := ScenarioOracle{Address: addr}
		if o.Ratio != "" {
			if oracle.Ratio, err = domain.ParseAmount(o.Ratio); err != nil {
				return nil, fmt.Errorf("oracle %d ratio: %w", i, err)
			}
		}
		s.Oracles = append(s.Oracles, oracle)
	}

	return s, nil
}

func scenarioRule(in scenarioRuleJSON) (*domain.SplitRule, error) {
	output, err := parseScenarioAddress(in.OutputAccount)
	if err != nil {
		return nil, fmt.Errorf("output_account: %w", err)
	}
	rule := &domain.SplitRule{
		OutputAccount: output,
		Token:         domain.Token(in.Token),
		Type:          domain.SplitType(in.Type),
	}
	if in.Amount != "" {
		if rule.Amount, err = domain.ParseAmount(in.Amount); err != nil {
			return nil, err
		}
	}
	if in.Ratio != "" {
		if rule.Ratio, err = domain.ParseAmount(in.Ratio); err != nil {
			return nil, err
		}
	}
	if in.Oracle != nil {
		addr, err := parseScenarioAddress(in.Oracle.Address)
		if err != nil {
			return nil, fmt.Errorf("oracle address: %w", err)
		}
		rule.Oracle = &domain.OracleQuery{Address: addr, Params: in.Oracle.Params}
	}
	return rule, nil
}

func parseScenarioAddress(s string) (domain.Address, error) {
	if s == "" {
		return domain.Address{}, nil
	}
	return domain.ParseAddress(s)
}

// DemoScenario returns a built-in scenario exercising all three split
// strategies: a 60/40 fixed-ratio pair, a fixed amount, and one
// oracle-driven dynamic rule answering one half.
func DemoScenario() *Scenario {
	var (
		input    = fixtureAddress("input")
		treasury = fixtureAddress("treasury")
		ops      = fixtureAddress("ops")
		staking  = fixtureAddress("staking")
		oracle   = fixtureAddress("oracle")
		wsol     = domain.Token(fixtureAddress("wsol-mint").String())
	)

	unit := domain.RatioUnit()
	pct := new(uint256.Int).Div(unit, uint256.NewInt(100))

	return &Scenario{
		Policy: &domain.SplitPolicy{
			InputAccount: input,
			Rules: []*domain.SplitRule{
				{OutputAccount: treasury, Token: fixtureUSDC, Type: domain.SplitFixedRatio, Ratio: new(uint256.Int).Mul(pct, uint256.NewInt(60))},
				{OutputAccount: ops, Token: fixtureUSDC, Type: domain.SplitFixedRatio, Ratio: new(uint256.Int).Mul(pct, uint256.NewInt(40))},
				{OutputAccount: staking, Token: domain.TokenNative, Type: domain.SplitFixedAmount, Amount: uint256.NewInt(500_000_000)},
				{OutputAccount: treasury, Token: wsol, Type: domain.SplitDynamicRatio, Oracle: &domain.OracleQuery{Address: oracle}},
			},
		},
		Balances: map[domain.Token]*uint256.Int{
			fixtureUSDC:        uint256.NewInt(1_000_000_000),
			domain.TokenNative: uint256.NewInt(2_000_000_000),
			wsol:               uint256.NewInt(4_000_000_000),
		},
		Oracles: []ScenarioOracle{
			{Address: oracle, Ratio: new(uint256.Int).Mul(pct, uint256.NewInt(50))},
		},
	}
}

// Stage provisions the scenario into a ledger and a static chain: accounts
// for the input and every output, spend approval for the library on the
// input account, fixture balances, and the oracle programs.
func (s *Scenario) Stage(ctx context.Context, ledger storage.LedgerStore, static *chain.Static, owner, library domain.Address) error {
	now := time.Now().UnixMilli()

	accounts := []domain.Address{s.Policy.InputAccount}
	for _, r := range s.Policy.Rules {
		accounts = append(accounts, r.OutputAccount)
	}
	created := make(map[domain.Address]bool, len(accounts))
	for _, addr := range accounts {
		if addr.IsZero() || created[addr] {
			continue
		}
		created[addr] = true
		err := ledger.CreateAccount(ctx, &domain.Account{Address: addr, Owner: owner, CreatedAt: now})
		if err != nil {
			return fmt.Errorf("create account %s: %w", addr, err)
		}
	}

	if !s.Policy.InputAccount.IsZero() {
		if err := ledger.ApproveLibrary(ctx, s.Policy.InputAccount, library); err != nil {
			return fmt.Errorf("approve library: %w", err)
		}
	}

	// A policy without an input account is staged as-is so the dry-run can
	// surface the validator's verdict instead of failing here.
	if !s.Policy.InputAccount.IsZero() {
		for token, amount := range s.Balances {
			if amount.IsZero() {
				continue
			}
			if err := ledger.Credit(ctx, s.Policy.InputAccount, token, amount); err != nil {
				return fmt.Errorf("credit %s: %w", token, err)
			}
		}
	}

	for _, o := range s.Oracles {
		if o.Ratio != nil {
			static.SetRatio(o.Address, o.Ratio)
		} else {
			static.AddProgram(o.Address)
		}
	}

	return nil
}
