package server

import (
	"net/http"
	"time"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

func (s *Server) handleSplitterUpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req splitPolicyJSON
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	policy, err := splitPolicyFromJSON(&req)
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := s.splitter.UpdateConfig(r.Context(), caller, policy); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Read back the stored policy so the response carries the assigned
	// version.
	stored, err := s.policies.GetSplitPolicy(r.Context(), s.splitter.Library())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitPolicyToJSON(stored))
}

func (s *Server) handleSplitterGetConfig(w http.ResponseWriter, r *http.Request) {
	policy, err := s.policies.GetSplitPolicy(r.Context(), s.splitter.Library())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitPolicyToJSON(policy))
}

func (s *Server) handleSplitterAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.policies.GetTokenAggregates(r.Context(), s.splitter.Library())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenAggregatesToJSON(aggs))
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	res, err := s.splitter.Split(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noteSplitRun()
	writeJSON(w, http.StatusOK, splitResultToJSON(res))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	res, err := s.splitter.Plan(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResultToJSON(res))
}

func (s *Server) handleForwarderUpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req forwardPolicyJSON
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	policy, err := forwardPolicyFromJSON(&req)
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := s.forwarder.UpdateConfig(r.Context(), caller, policy); err != nil {
		s.writeError(w, r, err)
		return
	}

	stored, err := s.policies.GetForwardPolicy(r.Context(), s.forwarder.Library())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forwardPolicyToJSON(stored))
}

func (s *Server) handleForwarderGetConfig(w http.ResponseWriter, r *http.Request) {
	policy, err := s.policies.GetForwardPolicy(r.Context(), s.forwarder.Library())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forwardPolicyToJSON(policy))
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	res, err := s.forwarder.Forward(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noteForwardRun()
	writeJSON(w, http.StatusOK, forwardResultToJSON(res))
}

func (s *Server) handlePositionExecute(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req positionRequestJSON
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	preq, err := positionRequestFromJSON(&req)
	if err != nil {
		badRequest(w, err)
		return
	}

	transfers, err := s.positions.Execute(r.Context(), caller, preq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResultJSON{Transfers: transfersToJSON(transfers)})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		badRequest(w, err)
		return
	}
	owner := caller
	if req.Owner != "" {
		if owner, err = domain.ParseAddress(req.Owner); err != nil {
			badRequest(w, err)
			return
		}
	}

	account := &domain.Account{
		Address:   addr,
		Owner:     owner,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.ledger.CreateAccount(r.Context(), account); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountJSON{
		Address:   account.Address.String(),
		Owner:     account.Owner.String(),
		CreatedAt: account.CreatedAt,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, err := domain.ParseAddress(r.PathValue("addr"))
	if err != nil {
		badRequest(w, err)
		return
	}

	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	library, err := domain.ParseAddress(req.Library)
	if err != nil {
		badRequest(w, err)
		return
	}

	account, err := s.ledger.GetAccount(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller != account.Owner {
		s.writeError(w, r, ErrNotAccountOwner)
		return
	}

	if err := s.ledger.ApproveLibrary(r.Context(), addr, library); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if caller != s.owner {
		s.writeError(w, r, ErrNotOwner)
		return
	}
	addr, err := domain.ParseAddress(r.PathValue("addr"))
	if err != nil {
		badRequest(w, err)
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}

	token := domain.Token(req.Token)
	if err := s.ledger.Credit(r.Context(), addr, token, amount); err != nil {
		s.writeError(w, r, err)
		return
	}

	balance, err := s.ledger.BalanceOf(r.Context(), addr, token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{Token: string(token), Balance: balance.Dec()})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("addr"))
	if err != nil {
		badRequest(w, err)
		return
	}

	if _, err := s.ledger.GetAccount(r.Context(), addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	balances, err := s.ledger.Balances(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := balancesResponse{Address: addr.String(), Balances: make(map[string]string, len(balances))}
	for token, amount := range balances {
		resp.Balances[string(token)] = amount.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}
