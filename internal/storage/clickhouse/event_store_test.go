package clickhouse

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

func testAddr(fill byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestEventStore_InsertSplitRun(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	run := &domain.SplitRun{
		RunID:            "run-1",
		Library:          testAddr(0x01),
		InputAccount:     testAddr(0x02),
		Caller:           testAddr(0x03),
		PolicyVersion:    3,
		TotalDistributed: uint256.NewInt(1000),
		TransferCount:    2,
		DurationMs:       17,
		ExecutedAt:       1_700_000_000_000,
	}

	err := store.InsertSplitRun(ctx, run)
	require.NoError(t, err)

	got, err := store.SplitRunsBetween(ctx, testAddr(0x01), 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, testAddr(0x01), got[0].Library)
	assert.Equal(t, testAddr(0x02), got[0].InputAccount)
	assert.Equal(t, testAddr(0x03), got[0].Caller)
	assert.Equal(t, int64(3), got[0].PolicyVersion)
	assert.Equal(t, uint256.NewInt(1000), got[0].TotalDistributed)
	assert.Equal(t, 2, got[0].TransferCount)
	assert.Equal(t, int64(17), got[0].DurationMs)
	assert.Equal(t, int64(1_700_000_000_000), got[0].ExecutedAt)
}

func TestEventStore_InsertSplitRun_LargeTotal(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	// 2^128, beyond any native integer column
	total, err := uint256.FromDecimal("340282366920938463463374607431768211456")
	require.NoError(t, err)

	run := &domain.SplitRun{
		RunID:            "run-big",
		Library:          testAddr(0x01),
		InputAccount:     testAddr(0x02),
		Caller:           testAddr(0x03),
		PolicyVersion:    1,
		TotalDistributed: total,
		TransferCount:    1,
		ExecutedAt:       1_700_000_000_000,
	}

	err = store.InsertSplitRun(ctx, run)
	require.NoError(t, err)

	got, err := store.SplitRunsBetween(ctx, testAddr(0x01), 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "340282366920938463463374607431768211456", got[0].TotalDistributed.Dec())
}

func TestEventStore_InsertSplitTransfers(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	err := store.InsertSplitTransfers(ctx, nil)
	assert.NoError(t, err)

	transfers := []*domain.SplitTransfer{
		{
			RunID:         "run-1",
			Seq:           0,
			Library:       testAddr(0x01),
			Token:         "usdc",
			OutputAccount: testAddr(0x0a),
			Type:          domain.SplitFixedRatio,
			Ratio:         uint256.NewInt(600_000_000_000_000_000),
			Amount:        uint256.NewInt(600),
			ExecutedAt:    1_700_000_000_000,
		},
		{
			RunID:         "run-1",
			Seq:           1,
			Library:       testAddr(0x01),
			Token:         "usdc",
			OutputAccount: testAddr(0x0b),
			Type:          domain.SplitFixedRatio,
			Ratio:         uint256.NewInt(400_000_000_000_000_000),
			Amount:        uint256.NewInt(400),
			ExecutedAt:    1_700_000_000_000,
		},
		{
			RunID:         "run-1",
			Seq:           2,
			Library:       testAddr(0x01),
			Token:         "native",
			OutputAccount: testAddr(0x0c),
			Type:          domain.SplitFixedAmount,
			Ratio:         nil,
			Amount:        uint256.NewInt(50),
			ExecutedAt:    1_700_000_000_000,
		},
	}

	err = store.InsertSplitTransfers(ctx, transfers)
	require.NoError(t, err)

	got, err := store.SplitTransfersBetween(ctx, testAddr(0x01), 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ordered by seq within the run
	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, 1, got[1].Seq)
	assert.Equal(t, 2, got[2].Seq)

	assert.Equal(t, domain.Token("usdc"), got[0].Token)
	assert.Equal(t, testAddr(0x0a), got[0].OutputAccount)
	assert.Equal(t, domain.SplitFixedRatio, got[0].Type)
	assert.Equal(t, uint256.NewInt(600_000_000_000_000_000), got[0].Ratio)
	assert.Equal(t, uint256.NewInt(600), got[0].Amount)

	// Fixed-amount transfers carry no ratio
	assert.Equal(t, domain.SplitFixedAmount, got[2].Type)
	assert.Nil(t, got[2].Ratio)
	assert.Equal(t, uint256.NewInt(50), got[2].Amount)
}

func TestEventStore_TotalsByToken(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	library := testAddr(0x01)
	transfers := []*domain.SplitTransfer{
		{RunID: "run-1", Seq: 0, Library: library, Token: "usdc", OutputAccount: testAddr(0x0a), Type: domain.SplitFixedAmount, Amount: uint256.NewInt(600), ExecutedAt: 1_000},
		{RunID: "run-1", Seq: 1, Library: library, Token: "usdc", OutputAccount: testAddr(0x0b), Type: domain.SplitFixedAmount, Amount: uint256.NewInt(400), ExecutedAt: 1_000},
		{RunID: "run-2", Seq: 0, Library: library, Token: "native", OutputAccount: testAddr(0x0a), Type: domain.SplitFixedAmount, Amount: uint256.NewInt(50), ExecutedAt: 2_000},
		// Outside the window below
		{RunID: "run-3", Seq: 0, Library: library, Token: "usdc", OutputAccount: testAddr(0x0a), Type: domain.SplitFixedAmount, Amount: uint256.NewInt(999), ExecutedAt: 9_000},
		// Different library
		{RunID: "run-4", Seq: 0, Library: testAddr(0x02), Token: "usdc", OutputAccount: testAddr(0x0a), Type: domain.SplitFixedAmount, Amount: uint256.NewInt(777), ExecutedAt: 1_500},
	}
	require.NoError(t, store.InsertSplitTransfers(ctx, transfers))

	totals, err := store.TotalsByToken(ctx, library, 0, 5_000)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, uint256.NewInt(1000), totals["usdc"])
	assert.Equal(t, uint256.NewInt(50), totals["native"])

	// Sums above 64 bits survive the round trip.
	big, err := domain.ParseAmount("340282366920938463463374607431768211456")
	require.NoError(t, err)
	require.NoError(t, store.InsertSplitTransfers(ctx, []*domain.SplitTransfer{
		{RunID: "run-5", Seq: 0, Library: library, Token: "wide", OutputAccount: testAddr(0x0a), Type: domain.SplitFixedAmount, Amount: big, ExecutedAt: 1_200},
		{RunID: "run-5", Seq: 1, Library: library, Token: "wide", OutputAccount: testAddr(0x0b), Type: domain.SplitFixedAmount, Amount: big, ExecutedAt: 1_200},
	}))

	totals, err = store.TotalsByToken(ctx, library, 0, 5_000)
	require.NoError(t, err)
	want := new(uint256.Int).Add(big, big)
	assert.Equal(t, want, totals["wide"])
}

func TestEventStore_SplitRunsBetween_Window(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	lib := testAddr(0x01)
	other := testAddr(0x02)

	for i, at := range []int64{1000, 2000, 3000} {
		err := store.InsertSplitRun(ctx, &domain.SplitRun{
			RunID:            string(rune('a' + i)),
			Library:          lib,
			InputAccount:     testAddr(0x10),
			Caller:           testAddr(0x11),
			PolicyVersion:    1,
			TotalDistributed: uint256.NewInt(1),
			TransferCount:    1,
			ExecutedAt:       at,
		})
		require.NoError(t, err)
	}

	// A run of another library inside the window must not leak in
	err := store.InsertSplitRun(ctx, &domain.SplitRun{
		RunID:            "other",
		Library:          other,
		InputAccount:     testAddr(0x10),
		Caller:           testAddr(0x11),
		PolicyVersion:    1,
		TotalDistributed: uint256.NewInt(1),
		TransferCount:    1,
		ExecutedAt:       2000,
	})
	require.NoError(t, err)

	got, err := store.SplitRunsBetween(ctx, lib, 1500, 2500)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].RunID)

	// Bounds are inclusive
	got, err = store.SplitRunsBetween(ctx, lib, 1000, 3000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].RunID)
	assert.Equal(t, "c", got[2].RunID)

	// Empty window
	got, err = store.SplitRunsBetween(ctx, lib, 4000, 5000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEventStore_InsertOracleSamples(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	err := store.InsertOracleSamples(ctx, nil)
	assert.NoError(t, err)

	lib := testAddr(0x01)
	samples := []*domain.OracleSample{
		{
			RunID:      "run-1",
			Library:    lib,
			Token:      "usdc",
			Oracle:     testAddr(0x20),
			ParamsHash: "abc123",
			Ratio:      uint256.NewInt(500_000_000_000_000_000),
			OK:         true,
			Cached:     false,
			QueriedAt:  1000,
		},
		{
			RunID:      "run-1",
			Library:    lib,
			Token:      "usdc",
			Oracle:     testAddr(0x20),
			ParamsHash: "abc123",
			Ratio:      uint256.NewInt(500_000_000_000_000_000),
			OK:         true,
			Cached:     true,
			QueriedAt:  1001,
		},
		{
			RunID:      "run-2",
			Library:    lib,
			Token:      "weth",
			Oracle:     testAddr(0x21),
			ParamsHash: "def456",
			Ratio:      uint256.NewInt(0),
			OK:         false,
			Cached:     false,
			QueriedAt:  2000,
		},
	}

	err = store.InsertOracleSamples(ctx, samples)
	require.NoError(t, err)

	count, err := store.OracleFailureCount(ctx, lib, 0, 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Window excludes the failure
	count, err = store.OracleFailureCount(ctx, lib, 0, 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Other library sees nothing
	count, err = store.OracleFailureCount(ctx, testAddr(0x02), 0, 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEventStore_InsertForwardRun(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	run := &domain.ForwardRun{
		RunID:         "fwd-1",
		Library:       testAddr(0x01),
		InputAccount:  testAddr(0x02),
		OutputAccount: testAddr(0x03),
		Caller:        testAddr(0x04),
		TotalMoved:    uint256.NewInt(750),
		TransferCount: 2,
		ExecutedAt:    1_700_000_000_000,
	}

	err := store.InsertForwardRun(ctx, run)
	require.NoError(t, err)

	// Forward runs are write-only through the store; verify the row landed.
	var count uint64
	err = conn.QueryRow(ctx,
		"SELECT count(*) FROM forward_runs WHERE run_id = ? AND total_moved = ?",
		"fwd-1", "750",
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
