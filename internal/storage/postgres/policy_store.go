package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// PolicyStore implements storage.PolicyStore using PostgreSQL.
type PolicyStore struct {
	pool *Pool
}

// NewPolicyStore creates a new PolicyStore.
func NewPolicyStore(pool *Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PolicyStore = (*PolicyStore)(nil)

// ReplaceSplitPolicy swaps the library's policy wholesale. Prior rule and
// aggregate rows are deleted and the new generation inserted within one
// transaction; the policy row is locked first so concurrent replacements
// serialize on the version bump.
func (s *PolicyStore) ReplaceSplitPolicy(ctx context.Context, library domain.Address, p *domain.SplitPolicy, aggs []*domain.TokenAggregate) error {
	if library.IsZero() || p == nil || p.InputAccount.IsZero() || len(p.Rules) == 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM split_policies WHERE library_address = $1 FOR UPDATE`,
		library.String(),
	).Scan(&version)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("lock policy row: %w", err)
	}
	version++

	_, err = tx.Exec(ctx, `
		INSERT INTO split_policies (library_address, input_account, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (library_address)
		DO UPDATE SET input_account = EXCLUDED.input_account,
		              version = EXCLUDED.version,
		              updated_at = EXCLUDED.updated_at
	`, library.String(), p.InputAccount.String(), version, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}

	// Old generation fully cleared before the new one is written.
	if _, err := tx.Exec(ctx, `DELETE FROM split_rules WHERE library_address = $1`, library.String()); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM token_aggregates WHERE library_address = $1`, library.String()); err != nil {
		return fmt.Errorf("clear aggregates: %w", err)
	}

	const ruleQuery = `
		INSERT INTO split_rules (
			library_address, position, output_account, token, split_type, amount, ratio, oracle_address, oracle_params
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
	`
	for i, rule := range p.Rules {
		var amount, ratio, oracleAddr interface{}
		var oracleParams []byte
		if rule.Amount != nil {
			amount = rule.Amount.Dec()
		}
		if rule.Ratio != nil {
			ratio = rule.Ratio.Dec()
		}
		if rule.Oracle != nil {
			oracleAddr = rule.Oracle.Address.String()
			oracleParams = rule.Oracle.Params
		}

		_, err := tx.Exec(ctx, ruleQuery,
			library.String(),
			i,
			rule.OutputAccount.String(),
			rule.Token.String(),
			rule.Type.String(),
			amount,
			ratio,
			oracleAddr,
			oracleParams,
		)
		if err != nil {
			return fmt.Errorf("insert rule %d: %w", i, err)
		}
	}

	const aggQuery = `
		INSERT INTO token_aggregates (
			library_address, position, token, split_type, ratio_sum, amount_sum, rule_count
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)
	`
	for i, agg := range aggs {
		_, err := tx.Exec(ctx, aggQuery,
			library.String(),
			i,
			agg.Token.String(),
			agg.Type.String(),
			amountParam(agg.RatioSum),
			amountParam(agg.AmountSum),
			agg.RuleCount,
		)
		if err != nil {
			return fmt.Errorf("insert aggregate %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetSplitPolicy retrieves the library's current split policy.
func (s *PolicyStore) GetSplitPolicy(ctx context.Context, library domain.Address) (*domain.SplitPolicy, error) {
	var inputStr string
	policy := &domain.SplitPolicy{}
	err := s.pool.QueryRow(ctx, `
		SELECT input_account, version, updated_at
		FROM split_policies
		WHERE library_address = $1
	`, library.String()).Scan(&inputStr, &policy.Version, &policy.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	if policy.InputAccount, err = domain.ParseAddress(inputStr); err != nil {
		return nil, fmt.Errorf("stored input account: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT output_account, token, split_type, amount::text, ratio::text, oracle_address, oracle_params
		FROM split_rules
		WHERE library_address = $1
		ORDER BY position ASC
	`, library.String())
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	defer rows.Close()

	policy.Rules, err = scanRules(rows)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// scanRules scans multiple rows into a slice of SplitRule.
func scanRules(rows pgx.Rows) ([]*domain.SplitRule, error) {
	var rules []*domain.SplitRule

	for rows.Next() {
		var outputStr, tokenStr, typeStr string
		var amountStr, ratioStr, oracleStr *string
		var oracleParams []byte

		err := rows.Scan(&outputStr, &tokenStr, &typeStr, &amountStr, &ratioStr, &oracleStr, &oracleParams)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}

		rule := &domain.SplitRule{
			Token: domain.Token(tokenStr),
			Type:  domain.SplitType(typeStr),
		}
		if rule.OutputAccount, err = domain.ParseAddress(outputStr); err != nil {
			return nil, fmt.Errorf("stored output account: %w", err)
		}
		if amountStr != nil {
			if rule.Amount, err = scanAmount(*amountStr); err != nil {
				return nil, err
			}
		}
		if ratioStr != nil {
			if rule.Ratio, err = scanAmount(*ratioStr); err != nil {
				return nil, err
			}
		}
		if oracleStr != nil {
			oracle := &domain.OracleQuery{Params: oracleParams}
			if oracle.Address, err = domain.ParseAddress(*oracleStr); err != nil {
				return nil, fmt.Errorf("stored oracle address: %w", err)
			}
			rule.Oracle = oracle
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}
	return rules, nil
}

// GetTokenAggregates retrieves the per-token index of the current policy.
func (s *PolicyStore) GetTokenAggregates(ctx context.Context, library domain.Address) ([]*domain.TokenAggregate, error) {
	// Distinguish "no policy" from "policy with no aggregates".
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM split_policies WHERE library_address = $1)`,
		library.String(),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check policy: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT token, split_type, ratio_sum::text, amount_sum::text, rule_count
		FROM token_aggregates
		WHERE library_address = $1
		ORDER BY position ASC
	`, library.String())
	if err != nil {
		return nil, fmt.Errorf("get aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []*domain.TokenAggregate
	for rows.Next() {
		var tokenStr, typeStr, ratioStr, amountStr string
		agg := &domain.TokenAggregate{}

		if err := rows.Scan(&tokenStr, &typeStr, &ratioStr, &amountStr, &agg.RuleCount); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		agg.Token = domain.Token(tokenStr)
		agg.Type = domain.SplitType(typeStr)
		if agg.RatioSum, err = scanAmount(ratioStr); err != nil {
			return nil, err
		}
		if agg.AmountSum, err = scanAmount(amountStr); err != nil {
			return nil, err
		}

		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return aggs, nil
}

// ReplaceForwardPolicy swaps the library's forward policy wholesale.
// The last-forwarded timestamp survives replacement so the interval guard
// holds across reconfiguration.
func (s *PolicyStore) ReplaceForwardPolicy(ctx context.Context, library domain.Address, p *domain.ForwardPolicy) error {
	if library.IsZero() || p == nil || p.InputAccount.IsZero() || p.OutputAccount.IsZero() || len(p.Limits) == 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM forward_policies WHERE library_address = $1 FOR UPDATE`,
		library.String(),
	).Scan(&version)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("lock forward policy row: %w", err)
	}
	version++

	_, err = tx.Exec(ctx, `
		INSERT INTO forward_policies (
			library_address, input_account, output_account, min_interval_secs, last_forwarded_at, version, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6)
		ON CONFLICT (library_address)
		DO UPDATE SET input_account = EXCLUDED.input_account,
		              output_account = EXCLUDED.output_account,
		              min_interval_secs = EXCLUDED.min_interval_secs,
		              version = EXCLUDED.version,
		              updated_at = EXCLUDED.updated_at
	`, library.String(), p.InputAccount.String(), p.OutputAccount.String(), p.MinIntervalSecs, version, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert forward policy: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM forward_limits WHERE library_address = $1`, library.String()); err != nil {
		return fmt.Errorf("clear forward limits: %w", err)
	}

	const limitQuery = `
		INSERT INTO forward_limits (library_address, position, token, max_amount)
		VALUES ($1, $2, $3, $4::numeric)
	`
	for i, limit := range p.Limits {
		if limit.MaxAmount == nil || limit.MaxAmount.IsZero() {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, limitQuery, library.String(), i, limit.Token.String(), amountParam(limit.MaxAmount))
		if err != nil {
			return fmt.Errorf("insert forward limit %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetForwardPolicy retrieves the library's current forward policy.
func (s *PolicyStore) GetForwardPolicy(ctx context.Context, library domain.Address) (*domain.ForwardPolicy, error) {
	var inputStr, outputStr string
	policy := &domain.ForwardPolicy{}
	err := s.pool.QueryRow(ctx, `
		SELECT input_account, output_account, min_interval_secs, last_forwarded_at, version, updated_at
		FROM forward_policies
		WHERE library_address = $1
	`, library.String()).Scan(&inputStr, &outputStr, &policy.MinIntervalSecs, &policy.LastForwardedAt, &policy.Version, &policy.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get forward policy: %w", err)
	}
	if policy.InputAccount, err = domain.ParseAddress(inputStr); err != nil {
		return nil, fmt.Errorf("stored input account: %w", err)
	}
	if policy.OutputAccount, err = domain.ParseAddress(outputStr); err != nil {
		return nil, fmt.Errorf("stored output account: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT token, max_amount::text
		FROM forward_limits
		WHERE library_address = $1
		ORDER BY position ASC
	`, library.String())
	if err != nil {
		return nil, fmt.Errorf("get forward limits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tokenStr, amountStr string
		if err := rows.Scan(&tokenStr, &amountStr); err != nil {
			return nil, fmt.Errorf("scan forward limit row: %w", err)
		}
		limit := &domain.ForwardLimit{Token: domain.Token(tokenStr)}
		if limit.MaxAmount, err = scanAmount(amountStr); err != nil {
			return nil, err
		}
		policy.Limits = append(policy.Limits, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forward limit rows: %w", err)
	}
	return policy, nil
}

// RecordForward stores the timestamp of the library's last forward run.
func (s *PolicyStore) RecordForward(ctx context.Context, library domain.Address, at int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forward_policies
		SET last_forwarded_at = $2
		WHERE library_address = $1
	`, library.String(), at)
	if err != nil {
		return fmt.Errorf("record forward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
