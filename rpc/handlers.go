package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"nftylend/crypto"
	"nftylend/native/lending"
	"nftylend/rpc/modules"
)

func invalidParams(format string, args ...interface{}) *modules.ModuleError {
	return &modules.ModuleError{
		HTTPStatus: http.StatusBadRequest,
		Code:       modules.CodeInvalidParams,
		Message:    fmt.Sprintf(format, args...),
	}
}

func decodeParams(params []json.RawMessage, dst interface{}) *modules.ModuleError {
	if len(params) != 1 {
		return invalidParams("expected a single params object")
	}
	if err := json.Unmarshal(params[0], dst); err != nil {
		return invalidParams("malformed params: %v", err)
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, *modules.ModuleError) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid %s address: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, *modules.ModuleError) {
	if value == "" {
		return nil, invalidParams("missing %s", field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, invalidParams("invalid %s amount %q", field, value)
	}
	return amount, nil
}

// optionalAmount tolerates absence so resolveInFull payments can omit amount.
func optionalAmount(field, value string) (*big.Int, *modules.ModuleError) {
	if value == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

type loanConfigParam struct {
	Collection  string `json:"collection"`
	IsERC1155   bool   `json:"isErc1155"`
	MinAmount   string `json:"minAmount"`
	MaxAmount   string `json:"maxAmount"`
	MinDuration uint64 `json:"minDuration"`
	MaxDuration uint64 `json:"maxDuration"`
	MinInterest uint64 `json:"minInterest"`
	MaxInterest uint64 `json:"maxInterest"`
}

func parseLoanConfigs(params []loanConfigParam) ([]*lending.LoanConfig, *modules.ModuleError) {
	out := make([]*lending.LoanConfig, 0, len(params))
	for i, p := range params {
		minAmount, err := parseAmount(fmt.Sprintf("loanConfigs[%d].minAmount", i), p.MinAmount)
		if err != nil {
			return nil, err
		}
		maxAmount, err := parseAmount(fmt.Sprintf("loanConfigs[%d].maxAmount", i), p.MaxAmount)
		if err != nil {
			return nil, err
		}
		out = append(out, &lending.LoanConfig{
			Collection:  p.Collection,
			IsERC1155:   p.IsERC1155,
			MinAmount:   minAmount,
			MaxAmount:   maxAmount,
			MinDuration: p.MinDuration,
			MaxDuration: p.MaxDuration,
			MinInterest: p.MinInterest,
			MaxInterest: p.MaxInterest,
		})
	}
	return out, nil
}

func (s *Server) registerHandlers() {
	s.handlers = map[string]rpcHandler{
		"lending_getProtocolParams":      {fn: s.lendingGetProtocolParams},
		"lending_getDesk":                {fn: s.lendingGetDesk},
		"lending_listDesks":              {fn: s.lendingListDesks},
		"lending_getLoanConfigs":         {fn: s.lendingGetLoanConfigs},
		"lending_getLoan":                {fn: s.lendingGetLoan},
		"lending_listLoans":              {fn: s.lendingListLoans},
		"lending_getLoanAmountDue":       {fn: s.lendingGetLoanAmountDue},
		"lending_getAccumulatedFees":     {fn: s.lendingGetAccumulatedFees},
		"lending_createLendingDesk":      {mutating: true, fn: s.lendingCreateLendingDesk},
		"lending_setLoanConfigs":         {mutating: true, fn: s.lendingSetLoanConfigs},
		"lending_removeLoanConfig":       {mutating: true, fn: s.lendingRemoveLoanConfig},
		"lending_addLiquidity":           {mutating: true, fn: s.lendingAddLiquidity},
		"lending_withdrawLiquidity":      {mutating: true, fn: s.lendingWithdrawLiquidity},
		"lending_setDeskState":           {mutating: true, fn: s.lendingSetDeskState},
		"lending_dissolveDesk":           {mutating: true, fn: s.lendingDissolveDesk},
		"lending_initializeNewLoan":      {mutating: true, fn: s.lendingInitializeNewLoan},
		"lending_makeLoanPayment":        {mutating: true, fn: s.lendingMakeLoanPayment},
		"lending_liquidateDefaultedLoan": {mutating: true, fn: s.lendingLiquidateDefaultedLoan},
		"lending_setLoanOriginationFee":  {mutating: true, fn: s.lendingSetLoanOriginationFee},
		"lending_setPaused":              {mutating: true, fn: s.lendingSetPaused},
		"lending_setPlatformWallet":      {mutating: true, fn: s.lendingSetPlatformWallet},
		"lending_transferOwnership":      {mutating: true, fn: s.lendingTransferOwnership},
		"lending_withdrawPlatformFees":   {mutating: true, fn: s.lendingWithdrawPlatformFees},
		"bank_balanceOf":                 {fn: s.bankBalanceOf},
		"bank_allowance":                 {fn: s.bankAllowance},
		"bank_approve":                   {mutating: true, fn: s.bankApprove},
		"bank_transfer":                  {mutating: true, fn: s.bankTransfer},
		"bank_faucetMint":                {mutating: true, fn: s.bankFaucetMint},
		"custody_ownerOf":                {fn: s.custodyOwnerOf},
		"custody_setApproval":            {mutating: true, fn: s.custodySetApproval},
		"custody_registerToken":          {mutating: true, fn: s.custodyRegisterToken},
	}
}

func (s *Server) lendingGetProtocolParams(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	if len(params) != 0 {
		return nil, invalidParams("expected no params")
	}
	return s.lending.GetProtocolParams()
}

func (s *Server) lendingGetDesk(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		DeskID uint64 `json:"deskId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.lending.GetDesk(p.DeskID)
}

func (s *Server) lendingListDesks(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	if len(params) != 0 {
		return nil, invalidParams("expected no params")
	}
	return s.lending.ListDesks()
}

func (s *Server) lendingGetLoanConfigs(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		DeskID uint64 `json:"deskId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.lending.GetDeskLoanConfigs(p.DeskID)
}

func (s *Server) lendingGetLoan(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		LoanID uint64 `json:"loanId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.lending.GetLoan(p.LoanID)
}

func (s *Server) lendingListLoans(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		DeskID *uint64 `json:"deskId"`
	}
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	return s.lending.ListLoans(p.DeskID)
}

func (s *Server) lendingGetLoanAmountDue(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		LoanID uint64 `json:"loanId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.lending.GetLoanAmountDue(p.LoanID)
}

func (s *Server) lendingGetAccumulatedFees(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.lending.GetAccumulatedFees(p.Currency)
}

func (s *Server) lendingCreateLendingDesk(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Owner          string            `json:"owner"`
		Currency       string            `json:"currency"`
		InitialBalance string            `json:"initialBalance"`
		LoanConfigs    []loanConfigParam `json:"loanConfigs"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	balance, err := parseAmount("initialBalance", p.InitialBalance)
	if err != nil {
		return nil, err
	}
	configs, err := parseLoanConfigs(p.LoanConfigs)
	if err != nil {
		return nil, err
	}
	return s.lending.CreateLendingDesk(owner, p.Currency, balance, configs)
}

func (s *Server) lendingSetLoanConfigs(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller      string            `json:"caller"`
		DeskID      uint64            `json:"deskId"`
		LoanConfigs []loanConfigParam `json:"loanConfigs"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	configs, err := parseLoanConfigs(p.LoanConfigs)
	if err != nil {
		return nil, err
	}
	return s.lending.SetLoanConfigs(caller, p.DeskID, configs)
}

func (s *Server) lendingRemoveLoanConfig(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller     string `json:"caller"`
		DeskID     uint64 `json:"deskId"`
		Collection string `json:"collection"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.RemoveLoanConfig(caller, p.DeskID, p.Collection)
}

func (s *Server) lendingAddLiquidity(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		DeskID uint64 `json:"deskId"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.lending.AddLiquidity(caller, p.DeskID, amount)
}

func (s *Server) lendingWithdrawLiquidity(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		DeskID uint64 `json:"deskId"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.lending.WithdrawLiquidity(caller, p.DeskID, amount)
}

func (s *Server) lendingSetDeskState(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		DeskID uint64 `json:"deskId"`
		Freeze bool   `json:"freeze"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.SetDeskState(caller, p.DeskID, p.Freeze)
}

func (s *Server) lendingDissolveDesk(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		DeskID uint64 `json:"deskId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.DissolveDesk(caller, p.DeskID)
}

func (s *Server) lendingInitializeNewLoan(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Borrower   string `json:"borrower"`
		DeskID     uint64 `json:"deskId"`
		Collection string `json:"collection"`
		NftID      uint64 `json:"nftId"`
		Duration   uint64 `json:"duration"`
		Amount     string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	borrower, err := parseAddress("borrower", p.Borrower)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.lending.InitializeNewLoan(borrower, p.DeskID, p.Collection, p.NftID, p.Duration, amount)
}

func (s *Server) lendingMakeLoanPayment(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller        string `json:"caller"`
		LoanID        uint64 `json:"loanId"`
		Amount        string `json:"amount"`
		ResolveInFull bool   `json:"resolveInFull"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := optionalAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if amount == nil && !p.ResolveInFull {
		return nil, invalidParams("missing amount")
	}
	return s.lending.MakeLoanPayment(caller, p.LoanID, amount, p.ResolveInFull)
}

func (s *Server) lendingLiquidateDefaultedLoan(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		LoanID uint64 `json:"loanId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.LiquidateDefaultedLoan(caller, p.LoanID)
}

func (s *Server) lendingSetLoanOriginationFee(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		Bps    uint64 `json:"bps"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.SetLoanOriginationFee(caller, p.Bps)
}

func (s *Server) lendingSetPaused(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		Paused bool   `json:"paused"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	return s.lending.SetPaused(caller, p.Paused)
}

func (s *Server) lendingSetPlatformWallet(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller string `json:"caller"`
		Wallet string `json:"wallet"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", p.Wallet)
	if err != nil {
		return nil, err
	}
	return s.lending.SetPlatformWallet(caller, wallet)
}

func (s *Server) lendingTransferOwnership(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"newOwner"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	newOwner, err := parseAddress("newOwner", p.NewOwner)
	if err != nil {
		return nil, err
	}
	return s.lending.TransferOwnership(caller, newOwner)
}

func (s *Server) lendingWithdrawPlatformFees(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Caller      string   `json:"caller"`
		Destination string   `json:"destination"`
		Currencies  []string `json:"currencies"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	destination, err := parseAddress("destination", p.Destination)
	if err != nil {
		return nil, err
	}
	return s.lending.WithdrawPlatformFees(caller, destination, p.Currencies)
}

func (s *Server) bankBalanceOf(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
		Address  string `json:"address"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	return s.bank.BalanceOf(p.Currency, addr)
}

func (s *Server) bankAllowance(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
		Owner    string `json:"owner"`
		Spender  string `json:"spender"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	return s.bank.Allowance(p.Currency, owner, spender)
}

func (s *Server) bankApprove(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
		Owner    string `json:"owner"`
		Spender  string `json:"spender"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.bank.Approve(p.Currency, owner, spender, amount)
}

func (s *Server) bankTransfer(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
		From     string `json:"from"`
		To       string `json:"to"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.bank.Transfer(p.Currency, from, to, amount)
}

func (s *Server) bankFaucetMint(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Currency string `json:"currency"`
		To       string `json:"to"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return s.bank.FaucetMint(p.Currency, to, amount)
}

func (s *Server) custodyOwnerOf(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Collection string `json:"collection"`
		NftID      uint64 `json:"nftId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.bank.OwnerOf(p.Collection, p.NftID)
}

func (s *Server) custodySetApproval(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Owner    string `json:"owner"`
		Approved bool   `json:"approved"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	return s.bank.SetCollateralApproval(owner, p.Approved)
}

func (s *Server) custodyRegisterToken(params []json.RawMessage) (interface{}, *modules.ModuleError) {
	var p struct {
		Collection string `json:"collection"`
		NftID      uint64 `json:"nftId"`
		Owner      string `json:"owner"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	return s.bank.FaucetRegisterToken(p.Collection, p.NftID, owner)
}
