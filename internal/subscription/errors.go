package subscription

import "errors"

var (
	ErrSubscriptionExpired = errors.New("subscription is not active")
	ErrInvalidTransition   = errors.New("invalid subscription transition")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrInvalidSettings     = errors.New("invalid practice settings")
)
