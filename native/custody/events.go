package custody

import (
	"strconv"

	"nftylend/core/types"
	"nftylend/crypto"
)

const (
	EventTypeRegistered = "custody.registered"
	EventTypeApproval   = "custody.approval"
	EventTypeHeld       = "custody.held"
	EventTypeReleased   = "custody.released"
)

type custodyEvent struct {
	evt *types.Event
}

func (e custodyEvent) EventType() string { return e.evt.Type }

func (e custodyEvent) Event() *types.Event { return e.evt }

func newRegisteredEvent(collection string, nftID uint64, owner crypto.Address) custodyEvent {
	return custodyEvent{evt: &types.Event{Type: EventTypeRegistered, Attributes: map[string]string{
		"collection": collection,
		"nftId":      strconv.FormatUint(nftID, 10),
		"owner":      owner.String(),
	}}}
}

func newApprovalEvent(owner, operator crypto.Address, approved bool) custodyEvent {
	return custodyEvent{evt: &types.Event{Type: EventTypeApproval, Attributes: map[string]string{
		"owner":    owner.String(),
		"operator": operator.String(),
		"approved": strconv.FormatBool(approved),
	}}}
}

func newHeldEvent(collection string, nftID uint64, from crypto.Address) custodyEvent {
	return custodyEvent{evt: &types.Event{Type: EventTypeHeld, Attributes: map[string]string{
		"collection": collection,
		"nftId":      strconv.FormatUint(nftID, 10),
		"from":       from.String(),
	}}}
}

func newReleasedEvent(collection string, nftID uint64, to crypto.Address) custodyEvent {
	return custodyEvent{evt: &types.Event{Type: EventTypeReleased, Attributes: map[string]string{
		"collection": collection,
		"nftId":      strconv.FormatUint(nftID, 10),
		"to":         to.String(),
	}}}
}
