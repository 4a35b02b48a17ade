package server

import (
	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/position"
	"github.com/orbitearn/valence-protocol/internal/splitter"
)

// Wire types. Amounts and ratios travel as decimal strings so values above
// 2^53 survive JSON round trips. Empty address and amount fields decode to
// zero values and fall through to component validation, which owns the
// canonical rejection strings.

type errorResponse struct {
	Error string `json:"error"`
}

type oracleQueryJSON struct {
	Address string `json:"address"`
	Params  []byte `json:"params,omitempty"` // base64 on the wire
}

type splitRuleJSON struct {
	OutputAccount string           `json:"output_account"`
	Token         string           `json:"token"`
	Type          string           `json:"type"`
	Amount        string           `json:"amount,omitempty"`
	Ratio         string           `json:"ratio,omitempty"`
	Oracle        *oracleQueryJSON `json:"oracle,omitempty"`
}

type splitPolicyJSON struct {
	InputAccount string          `json:"input_account"`
	Rules        []splitRuleJSON `json:"rules"`
	Version      int64           `json:"version,omitempty"`
	UpdatedAt    int64           `json:"updated_at,omitempty"`
}

type tokenAggregateJSON struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	RatioSum  string `json:"ratio_sum"`
	AmountSum string `json:"amount_sum"`
	RuleCount int    `json:"rule_count"`
}

type splitTransferJSON struct {
	Seq           int    `json:"seq"`
	Token         string `json:"token"`
	OutputAccount string `json:"output_account"`
	Type          string `json:"type"`
	Ratio         string `json:"ratio,omitempty"`
	Amount        string `json:"amount"`
}

type splitResultJSON struct {
	RunID            string              `json:"run_id,omitempty"`
	PolicyVersion    int64               `json:"policy_version"`
	TotalDistributed string              `json:"total_distributed"`
	Transfers        []splitTransferJSON `json:"transfers"`
}

type forwardLimitJSON struct {
	Token     string `json:"token"`
	MaxAmount string `json:"max_amount"`
}

type forwardPolicyJSON struct {
	InputAccount    string             `json:"input_account"`
	OutputAccount   string             `json:"output_account"`
	Limits          []forwardLimitJSON `json:"limits"`
	MinIntervalSecs int64              `json:"min_interval_secs"`
	LastForwardedAt int64              `json:"last_forwarded_at,omitempty"`
	Version         int64              `json:"version,omitempty"`
	UpdatedAt       int64              `json:"updated_at,omitempty"`
}

type transferJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type forwardResultJSON struct {
	RunID         string         `json:"run_id"`
	PolicyVersion int64          `json:"policy_version"`
	TotalMoved    string         `json:"total_moved"`
	Transfers     []transferJSON `json:"transfers"`
}

type positionRequestJSON struct {
	Venue  string `json:"venue"`
	Op     string `json:"op"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Input  string `json:"input_account,omitempty"`
	Output string `json:"output_account,omitempty"`
}

type positionResultJSON struct {
	Transfers []transferJSON `json:"transfers"`
}

type createAccountRequest struct {
	Address string `json:"address"`
	Owner   string `json:"owner,omitempty"` // defaults to the caller
}

type accountJSON struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	CreatedAt int64  `json:"created_at"`
}

type approveRequest struct {
	Library string `json:"library"`
}

type depositRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type depositResponse struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type balancesResponse struct {
	Address  string            `json:"address"`
	Balances map[string]string `json:"balances"`
}

type statusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	StartedAt      int64  `json:"started_at"`
	SplitRuns      int    `json:"split_runs"`
	ForwardRuns    int    `json:"forward_runs"`
	LastSplitRun   int64  `json:"last_split_run"`
	LastForwardRun int64  `json:"last_forward_run"`
	StreamClients  int    `json:"stream_clients"`
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func parseOptionalAddress(s string) (domain.Address, error) {
	if s == "" {
		return domain.Address{}, nil
	}
	return domain.ParseAddress(s)
}

func parseOptionalAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return domain.ParseAmount(s)
}

func splitPolicyFromJSON(in *splitPolicyJSON) (*domain.SplitPolicy, error) {
	input, err := parseOptionalAddress(in.InputAccount)
	if err != nil {
		return nil, err
	}
	policy := &domain.SplitPolicy{InputAccount: input}
	for _, r := range in.Rules {
		rule, err := splitRuleFromJSON(r)
		if err != nil {
			return nil, err
		}
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}

func splitRuleFromJSON(in splitRuleJSON) (*domain.SplitRule, error) {
	output, err := parseOptionalAddress(in.OutputAccount)
	if err != nil {
		return nil, err
	}
	amount, err := parseOptionalAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	ratio, err := parseOptionalAmount(in.Ratio)
	if err != nil {
		return nil, err
	}
	rule := &domain.SplitRule{
		OutputAccount: output,
		Token:         domain.Token(in.Token),
		Type:          domain.SplitType(in.Type),
		Amount:        amount,
		Ratio:         ratio,
	}
	if in.Oracle != nil {
		oracle, err := parseOptionalAddress(in.Oracle.Address)
		if err != nil {
			return nil, err
		}
		rule.Oracle = &domain.OracleQuery{Address: oracle, Params: in.Oracle.Params}
	}
	return rule, nil
}

func splitPolicyToJSON(p *domain.SplitPolicy) *splitPolicyJSON {
	out := &splitPolicyJSON{
		InputAccount: p.InputAccount.String(),
		Rules:        make([]splitRuleJSON, 0, len(p.Rules)),
		Version:      p.Version,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, r := range p.Rules {
		rule := splitRuleJSON{
			OutputAccount: r.OutputAccount.String(),
			Token:         string(r.Token),
			Type:          r.Type.String(),
			Amount:        amountString(r.Amount),
			Ratio:         amountString(r.Ratio),
		}
		if r.Oracle != nil {
			rule.Oracle = &oracleQueryJSON{Address: r.Oracle.Address.String(), Params: r.Oracle.Params}
		}
		out.Rules = append(out.Rules, rule)
	}
	return out
}

func tokenAggregatesToJSON(aggs []*domain.TokenAggregate) []tokenAggregateJSON {
	out := make([]tokenAggregateJSON, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, tokenAggregateJSON{
			Token:     string(a.Token),
			Type:      a.Type.String(),
			RatioSum:  amountString(a.RatioSum),
			AmountSum: amountString(a.AmountSum),
			RuleCount: a.RuleCount,
		})
	}
	return out
}

func splitResultToJSON(res *splitter.Result) *splitResultJSON {
	out := &splitResultJSON{
		RunID:            res.RunID,
		PolicyVersion:    res.PolicyVersion,
		TotalDistributed: amountString(res.Total),
		Transfers:        make([]splitTransferJSON, 0, len(res.Transfers)),
	}
	for _, tr := range res.Transfers {
		out.Transfers = append(out.Transfers, splitTransferJSON{
			Seq:           tr.Seq,
			Token:         string(tr.Token),
			OutputAccount: tr.OutputAccount.String(),
			Type:          tr.Type.String(),
			Ratio:         amountString(tr.Ratio),
			Amount:        amountString(tr.Amount),
		})
	}
	return out
}

func forwardPolicyFromJSON(in *forwardPolicyJSON) (*domain.ForwardPolicy, error) {
	input, err := parseOptionalAddress(in.InputAccount)
	if err != nil {
		return nil, err
	}
	output, err := parseOptionalAddress(in.OutputAccount)
	if err != nil {
		return nil, err
	}
	policy := &domain.ForwardPolicy{
		InputAccount:    input,
		OutputAccount:   output,
		MinIntervalSecs: in.MinIntervalSecs,
	}
	for _, l := range in.Limits {
		max, err := parseOptionalAmount(l.MaxAmount)
		if err != nil {
			return nil, err
		}
		policy.Limits = append(policy.Limits, &domain.ForwardLimit{
			Token:     domain.Token(l.Token),
			MaxAmount: max,
		})
	}
	return policy, nil
}

func forwardPolicyToJSON(p *domain.ForwardPolicy) *forwardPolicyJSON {
	out := &forwardPolicyJSON{
		InputAccount:    p.InputAccount.String(),
		OutputAccount:   p.OutputAccount.String(),
		Limits:          make([]forwardLimitJSON, 0, len(p.Limits)),
		MinIntervalSecs: p.MinIntervalSecs,
		LastForwardedAt: p.LastForwardedAt,
		Version:         p.Version,
		UpdatedAt:       p.UpdatedAt,
	}
	for _, l := range p.Limits {
		out.Limits = append(out.Limits, forwardLimitJSON{
			Token:     string(l.Token),
			MaxAmount: amountString(l.MaxAmount),
		})
	}
	return out
}

func transfersToJSON(transfers []*domain.Transfer) []transferJSON {
	out := make([]transferJSON, 0, len(transfers))
	for _, tr := range transfers {
		out = append(out, transferJSON{
			From:   tr.From.String(),
			To:     tr.To.String(),
			Token:  string(tr.Token),
			Amount: amountString(tr.Amount),
		})
	}
	return out
}

func forwardResultToJSON(res *forwarder.Result) *forwardResultJSON {
	return &forwardResultJSON{
		RunID:         res.RunID,
		PolicyVersion: res.PolicyVersion,
		TotalMoved:    amountString(res.Total),
		Transfers:     transfersToJSON(res.Moves),
	}
}

func positionRequestFromJSON(in *positionRequestJSON) (position.Request, error) {
	amount, err := parseOptionalAmount(in.Amount)
	if err != nil {
		return position.Request{}, err
	}
	input, err := parseOptionalAddress(in.Input)
	if err != nil {
		return position.Request{}, err
	}
	output, err := parseOptionalAddress(in.Output)
	if err != nil {
		return position.Request{}, err
	}
	return position.Request{
		Venue:  domain.Venue(in.Venue),
		Op:     domain.PositionOp(in.Op),
		Token:  domain.Token(in.Token),
		Amount: amount,
		Input:  input,
		Output: output,
	}, nil
}
