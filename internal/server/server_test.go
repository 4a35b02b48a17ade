package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/position"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage/memory"
	"github.com/orbitearn/valence-protocol/internal/stream"
)

func testAddr(fill byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	ownerAddr     = testAddr(0x01)
	processorAddr = testAddr(0x02)
	userAddr      = testAddr(0x03)
	splitLibrary  = testAddr(0x0a)
	fwdLibrary    = testAddr(0x0b)
	posLibrary    = testAddr(0x0c)
	venueProgram  = testAddr(0x0d)
	inputAddr     = testAddr(0x10)
	outputAddr    = testAddr(0x11)
	out1          = testAddr(0x21)
	out2          = testAddr(0x22)
	oracleAddr    = testAddr(0x77)
)

const tokenUSDC = "usdc"

type stubCode struct {
	programs map[domain.Address]bool
}

func (s *stubCode) HasCode(_ context.Context, a domain.Address) (bool, error) {
	return s.programs[a], nil
}

type stubRatios struct {
	fn func(oracle domain.Address, token domain.Token, params []byte) (*uint256.Int, error)
}

func (s *stubRatios) QueryRatio(_ context.Context, oracle domain.Address, token domain.Token, params []byte) (*uint256.Int, error) {
	if s.fn == nil {
		return new(uint256.Int), nil
	}
	return s.fn(oracle, token, params)
}

type serverFixture struct {
	ts       *httptest.Server
	hub      *stream.Hub
	ledger   *memory.LedgerStore
	policies *memory.PolicyStore
	events   *memory.EventStore
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	ledger := memory.NewLedgerStore()
	policies := memory.NewPolicyStore()
	events := memory.NewEventStore()
	code := &stubCode{programs: map[domain.Address]bool{oracleAddr: true}}
	ratios := &stubRatios{}

	if err := ledger.CreateAccount(ctx, &domain.Account{Address: inputAddr, Owner: ownerAddr, CreatedAt: 1}); err != nil {
		t.Fatalf("create input account: %v", err)
	}
	for _, library := range []domain.Address{splitLibrary, fwdLibrary, posLibrary} {
		if err := ledger.ApproveLibrary(ctx, inputAddr, library); err != nil {
			t.Fatalf("approve %s: %v", library, err)
		}
	}

	hub := stream.NewHub(stream.Options{Logger: zerolog.Nop()})
	t.Cleanup(hub.Close)

	splitEngine := splitter.New(splitter.Options{
		Logger:    zerolog.Nop(),
		Library:   splitLibrary,
		Owner:     ownerAddr,
		Processor: processorAddr,
		Ledger:    ledger,
		Policies:  policies,
		Code:      code,
		Ratios:    ratios,
		Events:    events,
		Publisher: hub,
	})
	fwdEngine := forwarder.New(forwarder.Options{
		Logger:    zerolog.Nop(),
		Library:   fwdLibrary,
		Owner:     ownerAddr,
		Processor: processorAddr,
		Ledger:    ledger,
		Policies:  policies,
		Events:    events,
		Publisher: hub,
	})

	lending, err := position.NewLendingAdapter(venueProgram)
	if err != nil {
		t.Fatalf("lending adapter: %v", err)
	}
	vault, err := position.NewVaultAdapter(venueProgram)
	if err != nil {
		t.Fatalf("vault adapter: %v", err)
	}
	registry := position.NewRegistry(position.Options{
		Logger:    zerolog.Nop(),
		Library:   posLibrary,
		Processor: processorAddr,
		Ledger:    ledger,
		Adapters:  []position.Adapter{lending, vault},
	})
	for _, escrow := range registry.Escrows() {
		if err := ledger.CreateAccount(ctx, &domain.Account{Address: escrow, Owner: ownerAddr, CreatedAt: 1}); err != nil {
			t.Fatalf("create escrow account: %v", err)
		}
		if err := ledger.ApproveLibrary(ctx, escrow, posLibrary); err != nil {
			t.Fatalf("approve escrow: %v", err)
		}
	}

	srv := New(Options{
		Logger:    zerolog.Nop(),
		Owner:     ownerAddr,
		Processor: processorAddr,
		Splitter:  splitEngine,
		Forwarder: fwdEngine,
		Positions: registry,
		Ledger:    ledger,
		Policies:  policies,
		Hub:       hub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &serverFixture{ts: ts, hub: hub, ledger: ledger, policies: policies, events: events}
}

// do issues a request with the caller header set unless caller is zero.
func (f *serverFixture) do(t *testing.T, method, path string, caller domain.Address, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller != (domain.Address{}) {
		req.Header.Set(CallerHeader, caller.String())
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status: got %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e errorResponse
	decodeBody(t, resp, &e)
	return e.Error
}

func ratioPolicy() splitPolicyJSON {
	return splitPolicyJSON{
		InputAccount: inputAddr.String(),
		Rules: []splitRuleJSON{
			{OutputAccount: out1.String(), Token: tokenUSDC, Type: "FIXED_RATIO", Ratio: "600000000000000000"},
			{OutputAccount: out2.String(), Token: tokenUSDC, Type: "FIXED_RATIO", Ratio: "400000000000000000"},
		},
	}
}

func (f *serverFixture) configureSplitter(t *testing.T) {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/splitter/config", ownerAddr, ratioPolicy())
	requireStatus(t, resp, http.StatusOK)
}

func (f *serverFixture) deposit(t *testing.T, account domain.Address, amount string) {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/deposit", ownerAddr,
		depositRequest{Token: tokenUSDC, Amount: amount})
	requireStatus(t, resp, http.StatusOK)
}

func (f *serverFixture) balance(t *testing.T, account domain.Address) string {
	t.Helper()
	v, err := f.ledger.BalanceOf(context.Background(), account, tokenUSDC)
	if err != nil {
		t.Fatalf("balance of %s: %v", account, err)
	}
	return v.Dec()
}

func TestServer_Health(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodGet, "/health", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body: got %q, want %q", body, "ok")
	}
}

func TestServer_Status(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodGet, "/status", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)

	var status statusResponse
	decodeBody(t, resp, &status)
	if status.Status != "running" {
		t.Errorf("status: got %q, want %q", status.Status, "running")
	}
	if status.SplitRuns != 0 || status.ForwardRuns != 0 {
		t.Errorf("expected zero runs, got %d/%d", status.SplitRuns, status.ForwardRuns)
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodGet, "/metrics", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected prometheus output")
	}
}

func TestServer_SplitterConfigLifecycle(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodGet, "/v1/splitter/config", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodPost, "/v1/splitter/config", processorAddr, ratioPolicy())
	requireStatus(t, resp, http.StatusForbidden)
	if msg := errorMessage(t, resp); msg != "caller is not the owner" {
		t.Errorf("error: got %q", msg)
	}

	resp = f.do(t, http.MethodPost, "/v1/splitter/config", ownerAddr, ratioPolicy())
	requireStatus(t, resp, http.StatusOK)
	var stored splitPolicyJSON
	decodeBody(t, resp, &stored)
	if stored.Version != 1 {
		t.Errorf("version: got %d, want 1", stored.Version)
	}
	if stored.InputAccount != inputAddr.String() {
		t.Errorf("input_account: got %q", stored.InputAccount)
	}
	if len(stored.Rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(stored.Rules))
	}
	if stored.Rules[0].Ratio != "600000000000000000" {
		t.Errorf("rule ratio: got %q", stored.Rules[0].Ratio)
	}
	if stored.UpdatedAt == 0 {
		t.Error("expected updated_at to be set")
	}

	resp = f.do(t, http.MethodPost, "/v1/splitter/config", ownerAddr, ratioPolicy())
	requireStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &stored)
	if stored.Version != 2 {
		t.Errorf("version after replace: got %d, want 2", stored.Version)
	}

	resp = f.do(t, http.MethodGet, "/v1/splitter/aggregates", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	var aggs []tokenAggregateJSON
	decodeBody(t, resp, &aggs)
	if len(aggs) != 1 {
		t.Fatalf("aggregates: got %d, want 1", len(aggs))
	}
	if aggs[0].Token != tokenUSDC || aggs[0].Type != "FIXED_RATIO" {
		t.Errorf("aggregate: got %+v", aggs[0])
	}
	if aggs[0].RatioSum != "1000000000000000000" {
		t.Errorf("ratio_sum: got %q", aggs[0].RatioSum)
	}
	if aggs[0].RuleCount != 2 {
		t.Errorf("rule_count: got %d, want 2", aggs[0].RuleCount)
	}
}

func TestServer_SplitterConfigRejected(t *testing.T) {
	f := newTestServer(t)

	bad := ratioPolicy()
	bad.Rules[1].Ratio = "300000000000000000"
	resp := f.do(t, http.MethodPost, "/v1/splitter/config", ownerAddr, bad)
	requireStatus(t, resp, http.StatusBadRequest)
	if msg := errorMessage(t, resp); msg != "sum of ratios is not equal to 1" {
		t.Errorf("error: got %q", msg)
	}

	// Nothing was persisted.
	resp = f.do(t, http.MethodGet, "/v1/splitter/config", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusNotFound)
}

func TestServer_SplitEndToEnd(t *testing.T) {
	f := newTestServer(t)
	f.configureSplitter(t)
	f.deposit(t, inputAddr, "1000")

	resp := f.do(t, http.MethodPost, "/v1/splitter/split", ownerAddr, nil)
	requireStatus(t, resp, http.StatusForbidden)
	if msg := errorMessage(t, resp); msg != "caller is not the processor" {
		t.Errorf("error: got %q", msg)
	}

	resp = f.do(t, http.MethodPost, "/v1/splitter/split", processorAddr, nil)
	requireStatus(t, resp, http.StatusOK)
	var result splitResultJSON
	decodeBody(t, resp, &result)
	if result.RunID == "" {
		t.Error("expected run_id to be set")
	}
	if result.PolicyVersion != 1 {
		t.Errorf("policy_version: got %d, want 1", result.PolicyVersion)
	}
	if result.TotalDistributed != "1000" {
		t.Errorf("total_distributed: got %q, want 1000", result.TotalDistributed)
	}
	if len(result.Transfers) != 2 {
		t.Fatalf("transfers: got %d, want 2", len(result.Transfers))
	}
	if result.Transfers[0].Amount != "600" || result.Transfers[1].Amount != "400" {
		t.Errorf("amounts: got %q/%q", result.Transfers[0].Amount, result.Transfers[1].Amount)
	}

	if got := f.balance(t, inputAddr); got != "0" {
		t.Errorf("input balance: got %s, want 0", got)
	}
	if got := f.balance(t, out1); got != "600" {
		t.Errorf("out1 balance: got %s, want 600", got)
	}
	if got := f.balance(t, out2); got != "400" {
		t.Errorf("out2 balance: got %s, want 400", got)
	}

	// Drained input: the next run distributes nothing but still succeeds.
	resp = f.do(t, http.MethodPost, "/v1/splitter/split", processorAddr, nil)
	requireStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &result)
	if result.TotalDistributed != "0" || len(result.Transfers) != 0 {
		t.Errorf("empty run: got total %q, %d transfers", result.TotalDistributed, len(result.Transfers))
	}

	resp = f.do(t, http.MethodGet, "/status", domain.Address{}, nil)
	var status statusResponse
	decodeBody(t, resp, &status)
	if status.SplitRuns != 2 {
		t.Errorf("split_runs: got %d, want 2", status.SplitRuns)
	}
}

func TestServer_SplitWithoutPolicy(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodPost, "/v1/splitter/split", processorAddr, nil)
	requireStatus(t, resp, http.StatusNotFound)
}

func TestServer_PlanDoesNotMoveFunds(t *testing.T) {
	f := newTestServer(t)
	f.configureSplitter(t)
	f.deposit(t, inputAddr, "1000")

	resp := f.do(t, http.MethodGet, "/v1/splitter/plan", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	var result splitResultJSON
	decodeBody(t, resp, &result)
	if result.RunID != "" {
		t.Errorf("plan run_id: got %q, want empty", result.RunID)
	}
	if result.TotalDistributed != "1000" {
		t.Errorf("plan total: got %q, want 1000", result.TotalDistributed)
	}

	if got := f.balance(t, inputAddr); got != "1000" {
		t.Errorf("input balance after plan: got %s, want 1000", got)
	}
}

func TestServer_ForwarderLifecycle(t *testing.T) {
	f := newTestServer(t)

	policy := forwardPolicyJSON{
		InputAccount:    inputAddr.String(),
		OutputAccount:   outputAddr.String(),
		Limits:          []forwardLimitJSON{{Token: tokenUSDC, MaxAmount: "500"}},
		MinIntervalSecs: 3600,
	}

	resp := f.do(t, http.MethodPost, "/v1/forwarder/config", userAddr, policy)
	requireStatus(t, resp, http.StatusForbidden)

	resp = f.do(t, http.MethodPost, "/v1/forwarder/config", ownerAddr, policy)
	requireStatus(t, resp, http.StatusOK)
	var stored forwardPolicyJSON
	decodeBody(t, resp, &stored)
	if stored.Version != 1 {
		t.Errorf("version: got %d, want 1", stored.Version)
	}

	f.deposit(t, inputAddr, "800")

	resp = f.do(t, http.MethodPost, "/v1/forwarder/forward", processorAddr, nil)
	requireStatus(t, resp, http.StatusOK)
	var result forwardResultJSON
	decodeBody(t, resp, &result)
	if result.TotalMoved != "500" {
		t.Errorf("total_moved: got %q, want 500 (capped)", result.TotalMoved)
	}
	if got := f.balance(t, outputAddr); got != "500" {
		t.Errorf("output balance: got %s, want 500", got)
	}

	// Second run inside the interval is throttled.
	resp = f.do(t, http.MethodPost, "/v1/forwarder/forward", processorAddr, nil)
	requireStatus(t, resp, http.StatusTooManyRequests)
	if msg := errorMessage(t, resp); msg != "forward interval not elapsed" {
		t.Errorf("error: got %q", msg)
	}

	resp = f.do(t, http.MethodGet, "/v1/forwarder/config", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &stored)
	if stored.LastForwardedAt == 0 {
		t.Error("expected last_forwarded_at to be set")
	}
}

func TestServer_PositionExecute(t *testing.T) {
	f := newTestServer(t)
	f.deposit(t, inputAddr, "1000")

	supply := positionRequestJSON{
		Venue:  "LENDING",
		Op:     "SUPPLY",
		Token:  tokenUSDC,
		Amount: "400",
		Input:  inputAddr.String(),
	}

	resp := f.do(t, http.MethodPost, "/v1/positions/execute", userAddr, supply)
	requireStatus(t, resp, http.StatusForbidden)

	resp = f.do(t, http.MethodPost, "/v1/positions/execute", processorAddr, supply)
	requireStatus(t, resp, http.StatusOK)
	var result positionResultJSON
	decodeBody(t, resp, &result)
	if len(result.Transfers) != 1 {
		t.Fatalf("transfers: got %d, want 1", len(result.Transfers))
	}
	if result.Transfers[0].From != inputAddr.String() || result.Transfers[0].Amount != "400" {
		t.Errorf("supply transfer: got %+v", result.Transfers[0])
	}
	if got := f.balance(t, inputAddr); got != "600" {
		t.Errorf("input balance: got %s, want 600", got)
	}

	withdraw := positionRequestJSON{
		Venue:  "LENDING",
		Op:     "WITHDRAW",
		Token:  tokenUSDC,
		Amount: "150",
		Output: inputAddr.String(),
	}
	resp = f.do(t, http.MethodPost, "/v1/positions/execute", processorAddr, withdraw)
	requireStatus(t, resp, http.StatusOK)
	if got := f.balance(t, inputAddr); got != "750" {
		t.Errorf("input balance after withdraw: got %s, want 750", got)
	}

	unknown := supply
	unknown.Venue = "CASINO"
	resp = f.do(t, http.MethodPost, "/v1/positions/execute", processorAddr, unknown)
	requireStatus(t, resp, http.StatusBadRequest)
	if msg := errorMessage(t, resp); msg != "unknown venue" {
		t.Errorf("error: got %q", msg)
	}

	borrow := supply
	borrow.Venue = "VAULT"
	borrow.Op = "BORROW"
	borrow.Output = inputAddr.String()
	resp = f.do(t, http.MethodPost, "/v1/positions/execute", processorAddr, borrow)
	requireStatus(t, resp, http.StatusBadRequest)
	if msg := errorMessage(t, resp); msg != "operation not supported by venue" {
		t.Errorf("error: got %q", msg)
	}
}

func TestServer_AccountEndpoints(t *testing.T) {
	f := newTestServer(t)
	account := testAddr(0x31)

	resp := f.do(t, http.MethodPost, "/v1/accounts", userAddr, createAccountRequest{Address: account.String()})
	requireStatus(t, resp, http.StatusCreated)
	var created accountJSON
	decodeBody(t, resp, &created)
	if created.Owner != userAddr.String() {
		t.Errorf("owner: got %q, want caller", created.Owner)
	}

	resp = f.do(t, http.MethodPost, "/v1/accounts", userAddr, createAccountRequest{Address: account.String()})
	requireStatus(t, resp, http.StatusConflict)

	approve := approveRequest{Library: splitLibrary.String()}
	resp = f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/approve", ownerAddr, approve)
	requireStatus(t, resp, http.StatusForbidden)
	if msg := errorMessage(t, resp); msg != "caller is not the account owner" {
		t.Errorf("error: got %q", msg)
	}

	resp = f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/approve", userAddr, approve)
	requireStatus(t, resp, http.StatusNoContent)

	resp = f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/deposit", userAddr,
		depositRequest{Token: tokenUSDC, Amount: "250"})
	requireStatus(t, resp, http.StatusForbidden)
	if msg := errorMessage(t, resp); msg != "caller is not the owner" {
		t.Errorf("error: got %q", msg)
	}

	resp = f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/deposit", ownerAddr,
		depositRequest{Token: tokenUSDC, Amount: "250"})
	requireStatus(t, resp, http.StatusOK)
	var dep depositResponse
	decodeBody(t, resp, &dep)
	if dep.Balance != "250" {
		t.Errorf("balance: got %q, want 250", dep.Balance)
	}

	resp = f.do(t, http.MethodPost, "/v1/accounts/"+account.String()+"/deposit", ownerAddr,
		depositRequest{Token: tokenUSDC, Amount: "250"})
	requireStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &dep)
	if dep.Balance != "500" {
		t.Errorf("balance after second deposit: got %q, want 500", dep.Balance)
	}

	resp = f.do(t, http.MethodGet, "/v1/accounts/"+account.String()+"/balances", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusOK)
	var balances balancesResponse
	decodeBody(t, resp, &balances)
	if balances.Balances[tokenUSDC] != "500" {
		t.Errorf("balances: got %v", balances.Balances)
	}

	resp = f.do(t, http.MethodGet, "/v1/accounts/"+testAddr(0x55).String()+"/balances", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodPost, "/v1/accounts", userAddr, createAccountRequest{Address: "not-an-address"})
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestServer_CallerHeaderRequired(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodPost, "/v1/splitter/split", domain.Address{}, nil)
	requireStatus(t, resp, http.StatusUnauthorized)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/v1/splitter/split", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(CallerHeader, "not-base58!")
	resp, err = f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestServer_StreamDeliversSplitRuns(t *testing.T) {
	f := newTestServer(t)
	f.configureSplitter(t)
	f.deposit(t, inputAddr, "1000")

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := f.do(t, http.MethodPost, "/v1/splitter/split", processorAddr, nil)
	requireStatus(t, resp, http.StatusOK)
	var result splitResultJSON
	decodeBody(t, resp, &result)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read stream message: %v", err)
	}
	var event struct {
		Type             string `json:"type"`
		RunID            string `json:"run_id"`
		TotalDistributed string `json:"total_distributed"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "split_run" {
		t.Errorf("type: got %q, want split_run", event.Type)
	}
	if event.RunID != result.RunID {
		t.Errorf("run_id: got %q, want %q", event.RunID, result.RunID)
	}
	if event.TotalDistributed != "1000" {
		t.Errorf("total_distributed: got %q, want 1000", event.TotalDistributed)
	}
}
