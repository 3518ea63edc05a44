package order

// OrderState implements the state pattern for fulfillment transitions.
// Orders only move forward: EN_PROCESO -> EN_CAMINO -> ENTREGADO.
type OrderState interface {
	Status() Status
	advance(to Status) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusInTransit:
		return inTransitState{}
	case StatusDelivered:
		return deliveredState{}
	default:
		return processingState{}
	}
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) advance(to Status) (OrderState, error) {
	switch to {
	case StatusInTransit:
		return inTransitState{}, nil
	case StatusDelivered:
		return deliveredState{}, nil
	default:
		return nil, ErrInvalidStateTransition
	}
}

type inTransitState struct{}

func (inTransitState) Status() Status { return StatusInTransit }

func (inTransitState) advance(to Status) (OrderState, error) {
	if to == StatusDelivered {
		return deliveredState{}, nil
	}
	return nil, ErrInvalidStateTransition
}

type deliveredState struct{}

func (deliveredState) Status() Status { return StatusDelivered }

func (deliveredState) advance(Status) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}
