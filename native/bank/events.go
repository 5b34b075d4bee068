package bank

import (
	"math/big"

	"nftylend/core/types"
	"nftylend/crypto"
)

const (
	EventTypeMint     = "bank.mint"
	EventTypeTransfer = "bank.transfer"
	EventTypeApproval = "bank.approval"
)

type bankEvent struct {
	evt *types.Event
}

func (e bankEvent) EventType() string { return e.evt.Type }

func (e bankEvent) Event() *types.Event { return e.evt }

func newMintEvent(currency string, to crypto.Address, amount *big.Int) bankEvent {
	return bankEvent{evt: &types.Event{Type: EventTypeMint, Attributes: map[string]string{
		"currency": currency,
		"to":       to.String(),
		"amount":   amount.String(),
	}}}
}

func newTransferEvent(currency string, from, to crypto.Address, amount *big.Int) bankEvent {
	return bankEvent{evt: &types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"currency": currency,
		"from":     from.String(),
		"to":       to.String(),
		"amount":   amount.String(),
	}}}
}

func newApprovalEvent(currency string, owner, spender crypto.Address, amount *big.Int) bankEvent {
	return bankEvent{evt: &types.Event{Type: EventTypeApproval, Attributes: map[string]string{
		"currency": currency,
		"owner":    owner.String(),
		"spender":  spender.String(),
		"amount":   amount.String(),
	}}}
}
