package enums

import "fmt"

// OrderState is the lifecycle of an order, starting as the buyer's basket.
type OrderState string

const (
	OrderStateBasket    OrderState = "basket"
	OrderStateNew       OrderState = "new"
	OrderStateConfirmed OrderState = "confirmed"
	OrderStateAssembled OrderState = "assembled"
	OrderStateSent      OrderState = "sent"
	OrderStateDelivered OrderState = "delivered"
	OrderStateCanceled  OrderState = "canceled"
)

var validOrderStates = []OrderState{
	OrderStateBasket,
	OrderStateNew,
	OrderStateConfirmed,
	OrderStateAssembled,
	OrderStateSent,
	OrderStateDelivered,
	OrderStateCanceled,
}

// forward transitions driven by staff; canceled is handled separately.
var nextOrderState = map[OrderState]OrderState{
	OrderStateNew:       OrderStateConfirmed,
	OrderStateConfirmed: OrderStateAssembled,
	OrderStateAssembled: OrderStateSent,
	OrderStateSent:      OrderStateDelivered,
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPlaced reports whether the order left the basket stage.
func (s OrderState) IsPlaced() bool {
	return s.IsValid() && s != OrderStateBasket
}

// CanTransitionTo reports whether a staff transition from s to target is allowed.
// Basket promotion is owned by order placement and never goes through here.
func (s OrderState) CanTransitionTo(target OrderState) bool {
	if s == OrderStateBasket || target == OrderStateBasket {
		return false
	}
	if target == OrderStateCanceled {
		return s != OrderStateDelivered && s != OrderStateCanceled
	}
	next, ok := nextOrderState[s]
	return ok && next == target
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
