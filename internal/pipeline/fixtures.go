package pipeline

import (
	"context"
	"crypto/sha256"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/idhash"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Demo window bounds (Unix ms). All fixture events fall inside
// [FixtureWindowStart, FixtureWindowEnd].
const (
	FixtureWindowStart = int64(1735689600000) // 2025-01-01 00:00:00 UTC
	FixtureWindowEnd   = int64(1735776000000) // 2025-01-02 00:00:00 UTC
)

// The USDC mint keeps the demo output recognizable.
const fixtureUSDC = domain.Token("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

// FixtureLibrary is the library address the demo events belong to.
var FixtureLibrary = fixtureAddress("library")

// LoadFixtures populates the event store with demo run history for the
// report command's fixture mode.
func LoadFixtures(ctx context.Context, events storage.EventStore) error {
	var (
		input     = fixtureAddress("input")
		processor = fixtureAddress("processor")
		treasury  = fixtureAddress("treasury")
		ops       = fixtureAddress("ops")
		staking   = fixtureAddress("staking")
		oracle    = fixtureAddress("oracle")
	)

	at1 := FixtureWindowStart + 6*3600*1000  // 06:00
	at2 := FixtureWindowStart + 12*3600*1000 // 12:00
	at3 := FixtureWindowStart + 18*3600*1000 // 18:00

	run1 := idhash.ComputeRunID(FixtureLibrary, at1, 1)
	run2 := idhash.ComputeRunID(FixtureLibrary, at2, 2)
	run3 := idhash.ComputeRunID(FixtureLibrary, at3, 3)

	runs := []*domain.SplitRun{
		{
			RunID:            run1,
			Library:          FixtureLibrary,
			InputAccount:     input,
			Caller:           processor,
			PolicyVersion:    1,
			TotalDistributed: uint256.NewInt(1_500_000_000),
			TransferCount:    2,
			DurationMs:       12,
			ExecutedAt:       at1,
		},
		{
			RunID:            run2,
			Library:          FixtureLibrary,
			InputAccount:     input,
			Caller:           processor,
			PolicyVersion:    1,
			TotalDistributed: uint256.NewInt(2_000_000_000),
			TransferCount:    1,
			DurationMs:       8,
			ExecutedAt:       at2,
		},
		{
			RunID:            run3,
			Library:          FixtureLibrary,
			InputAccount:     input,
			Caller:           processor,
			PolicyVersion:    2,
			TotalDistributed: uint256.NewInt(750_000_000),
			TransferCount:    2,
			DurationMs:       15,
			ExecutedAt:       at3,
		},
	}
	for _, run := range runs {
		if err := events.InsertSplitRun(ctx, run); err != nil {
			return err
		}
	}

	halfRatio := new(uint256.Int).Div(domain.RatioUnit(), uint256.NewInt(2))
	transfers := []*domain.SplitTransfer{
		{RunID: run1, Seq: 0, Library: FixtureLibrary, Token: fixtureUSDC, OutputAccount: treasury, Type: domain.SplitFixedRatio, Ratio: new(uint256.Int).Set(halfRatio), Amount: uint256.NewInt(900_000_000), ExecutedAt: at1},
		{RunID: run1, Seq: 1, Library: FixtureLibrary, Token: fixtureUSDC, OutputAccount: ops, Type: domain.SplitFixedRatio, Ratio: new(uint256.Int).Set(halfRatio), Amount: uint256.NewInt(600_000_000), ExecutedAt: at1},
		{RunID: run2, Seq: 0, Library: FixtureLibrary, Token: domain.TokenNative, OutputAccount: treasury, Type: domain.SplitFixedAmount, Amount: uint256.NewInt(2_000_000_000), ExecutedAt: at2},
		{RunID: run3, Seq: 0, Library: FixtureLibrary, Token: fixtureUSDC, OutputAccount: staking, Type: domain.SplitDynamicRatio, Ratio: new(uint256.Int).Set(halfRatio), Amount: uint256.NewInt(500_000_000), ExecutedAt: at3},
		{RunID: run3, Seq: 1, Library: FixtureLibrary, Token: fixtureUSDC, OutputAccount: ops, Type: domain.SplitDynamicRatio, Ratio: new(uint256.Int).Set(halfRatio), Amount: uint256.NewInt(250_000_000), ExecutedAt: at3},
	}
	if err := events.InsertSplitTransfers(ctx, transfers); err != nil {
		return err
	}

	samples := []*domain.OracleSample{
		{
			RunID:      run3,
			Library:    FixtureLibrary,
			Token:      fixtureUSDC,
			Oracle:     oracle,
			ParamsHash: idhash.ComputeRatioKey(fixtureUSDC, oracle, nil),
			Ratio:      new(uint256.Int).Set(halfRatio),
			OK:         true,
			QueriedAt:  at3,
		},
		{
			RunID:      run3,
			Library:    FixtureLibrary,
			Token:      domain.TokenNative,
			Oracle:     oracle,
			ParamsHash: idhash.ComputeRatioKey(domain.TokenNative, oracle, nil),
			Ratio:      new(uint256.Int),
			OK:         false,
			QueriedAt:  at3,
		},
	}
	return events.InsertOracleSamples(ctx, samples)
}

func fixtureAddress(tag string) domain.Address {
	var a domain.Address
	sum := sha256.Sum256([]byte("valence-fixture:" + tag))
	copy(a[:], sum[:])
	return a
}
