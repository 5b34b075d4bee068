package lending

import (
	"math/big"
	"strconv"
	"strings"

	"nftylend/core/types"
	"nftylend/crypto"
)

const (
	EventTypeDeskInitialized       = "lending.desk.initialized"
	EventTypeLoanConfigsSet        = "lending.desk.loan_configs_set"
	EventTypeLoanConfigRemoved     = "lending.desk.loan_config_removed"
	EventTypeLiquidityAdded        = "lending.desk.liquidity_added"
	EventTypeLiquidityWithdrawn    = "lending.desk.liquidity_withdrawn"
	EventTypeDeskStateSet          = "lending.desk.state_set"
	EventTypeDeskDissolved         = "lending.desk.dissolved"
	EventTypeLoanInitialized       = "lending.loan.initialized"
	EventTypeLoanPaymentMade       = "lending.loan.payment_made"
	EventTypeLoanDefaulted         = "lending.loan.defaulted"
	EventTypeOriginationFeeSet     = "lending.fee.set"
	EventTypePlatformFeesWithdrawn = "lending.fee.withdrawn"
	EventTypePaused                = "lending.paused"
	EventTypeUnpaused              = "lending.unpaused"
	EventTypeOwnershipTransferred  = "lending.ownership_transferred"
	EventTypePlatformWalletSet     = "lending.platform_wallet_set"
	EventTypeProtocolInitialized   = "lending.protocol.initialized"
)

type lendingEvent struct {
	evt *types.Event
}

func (e lendingEvent) EventType() string { return e.evt.Type }

func (e lendingEvent) Event() *types.Event { return e.evt }

func newEvent(eventType string, attrs map[string]string) lendingEvent {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return lendingEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewDeskInitializedEvent emits the payload for a newly created lending desk.
func NewDeskInitializedEvent(d *LendingDesk) lendingEvent {
	return newEvent(EventTypeDeskInitialized, map[string]string{
		"deskId":   formatUint(d.ID),
		"owner":    d.Owner.String(),
		"currency": d.Currency,
		"balance":  formatAmount(d.Balance),
	})
}

// NewLoanConfigsSetEvent emits the payload when desk loan configs are replaced
// or inserted. Collections are listed comma-separated in insertion order.
func NewLoanConfigsSetEvent(deskID uint64, configs []*LoanConfig) lendingEvent {
	collections := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if cfg != nil {
			collections = append(collections, cfg.Collection)
		}
	}
	return newEvent(EventTypeLoanConfigsSet, map[string]string{
		"deskId":      formatUint(deskID),
		"collections": strings.Join(collections, ","),
	})
}

// NewLoanConfigRemovedEvent emits the payload for a per-collection config
// removal.
func NewLoanConfigRemovedEvent(deskID uint64, collection string) lendingEvent {
	return newEvent(EventTypeLoanConfigRemoved, map[string]string{
		"deskId":     formatUint(deskID),
		"collection": collection,
	})
}

// NewLiquidityAddedEvent emits the payload after a deposit into a desk.
func NewLiquidityAddedEvent(d *LendingDesk, amount *big.Int) lendingEvent {
	return newEvent(EventTypeLiquidityAdded, map[string]string{
		"deskId":      formatUint(d.ID),
		"amountAdded": formatAmount(amount),
		"newBalance":  formatAmount(d.Balance),
	})
}

// NewLiquidityWithdrawnEvent emits the payload after a withdrawal from a desk.
func NewLiquidityWithdrawnEvent(d *LendingDesk, amount *big.Int) lendingEvent {
	return newEvent(EventTypeLiquidityWithdrawn, map[string]string{
		"deskId":          formatUint(d.ID),
		"amountWithdrawn": formatAmount(amount),
		"newBalance":      formatAmount(d.Balance),
	})
}

// NewDeskStateSetEvent emits the payload when a desk is frozen or unfrozen.
func NewDeskStateSetEvent(d *LendingDesk) lendingEvent {
	return newEvent(EventTypeDeskStateSet, map[string]string{
		"deskId": formatUint(d.ID),
		"frozen": strconv.FormatBool(d.Status == DeskStatusFrozen),
	})
}

// NewDeskDissolvedEvent emits the payload for a permanent desk dissolution.
func NewDeskDissolvedEvent(deskID uint64) lendingEvent {
	return newEvent(EventTypeDeskDissolved, map[string]string{
		"deskId": formatUint(deskID),
	})
}

// NewLoanInitializedEvent emits the payload for a freshly originated loan,
// including the platform fee withheld from the disbursement.
func NewLoanInitializedEvent(l *Loan, fee *big.Int) lendingEvent {
	return newEvent(EventTypeLoanInitialized, map[string]string{
		"loanId":     formatUint(l.ID),
		"deskId":     formatUint(l.LendingDeskID),
		"borrower":   l.Borrower.String(),
		"collection": l.Collection,
		"nftId":      formatUint(l.NftID),
		"amount":     formatAmount(l.Amount),
		"duration":   formatUint(l.Duration),
		"interest":   formatUint(l.InterestBps),
		"fee":        formatAmount(fee),
		"startTime":  strconv.FormatInt(l.StartTime, 10),
	})
}

// NewLoanPaymentEvent emits the payload for a repayment, flagging resolution.
func NewLoanPaymentEvent(loanID uint64, amount *big.Int, resolved bool) lendingEvent {
	return newEvent(EventTypeLoanPaymentMade, map[string]string{
		"loanId":     formatUint(loanID),
		"amountPaid": formatAmount(amount),
		"resolved":   strconv.FormatBool(resolved),
	})
}

// NewLoanDefaultedEvent emits the payload for a liquidated defaulted loan.
func NewLoanDefaultedEvent(loanID uint64) lendingEvent {
	return newEvent(EventTypeLoanDefaulted, map[string]string{
		"loanId": formatUint(loanID),
	})
}

// NewOriginationFeeSetEvent emits the payload when the global fee changes.
func NewOriginationFeeSetEvent(bps uint64) lendingEvent {
	return newEvent(EventTypeOriginationFeeSet, map[string]string{
		"bps": formatUint(bps),
	})
}

// NewPlatformFeesWithdrawnEvent emits the payload for a fee pool withdrawal.
func NewPlatformFeesWithdrawnEvent(currency string, destination crypto.Address, amount *big.Int) lendingEvent {
	return newEvent(EventTypePlatformFeesWithdrawn, map[string]string{
		"currency":    currency,
		"destination": destination.String(),
		"amount":      formatAmount(amount),
	})
}

// NewPausedEvent emits the payload when the protocol is paused.
func NewPausedEvent() lendingEvent { return newEvent(EventTypePaused, nil) }

// NewUnpausedEvent emits the payload when the protocol is unpaused.
func NewUnpausedEvent() lendingEvent { return newEvent(EventTypeUnpaused, nil) }

// NewOwnershipTransferredEvent emits the payload for an ownership handover.
func NewOwnershipTransferredEvent(previous, next crypto.Address) lendingEvent {
	return newEvent(EventTypeOwnershipTransferred, map[string]string{
		"previousOwner": previous.String(),
		"newOwner":      next.String(),
	})
}

// NewPlatformWalletSetEvent emits the payload when the platform wallet moves.
func NewPlatformWalletSetEvent(wallet crypto.Address) lendingEvent {
	return newEvent(EventTypePlatformWalletSet, map[string]string{
		"wallet": wallet.String(),
	})
}

// NewProtocolInitializedEvent emits the payload for the one-time bootstrap.
func NewProtocolInitializedEvent(p *ProtocolParams) lendingEvent {
	return newEvent(EventTypeProtocolInitialized, map[string]string{
		"owner":          p.Owner.String(),
		"platformWallet": p.PlatformWallet.String(),
		"feeBps":         formatUint(p.LoanOriginationFeeBps),
	})
}
