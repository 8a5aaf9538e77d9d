package model

// TxState 一次余额交易尝试的状态
type TxState string

const (
	TxStateInitiated     TxState = "INITIATED"
	TxStateValidated     TxState = "VALIDATED"
	TxStatePromoResolved TxState = "PROMO_RESOLVED"
	TxStateCommitted     TxState = "COMMITTED"
	TxStateRejected      TxState = "REJECTED"
)

// ValidTxTransitions 非充值交易跳过 PROMO_RESOLVED，直接从 VALIDATED 提交
var ValidTxTransitions = map[TxState][]TxState{
	TxStateInitiated:     {TxStateValidated, TxStateRejected},
	TxStateValidated:     {TxStatePromoResolved, TxStateCommitted, TxStateRejected},
	TxStatePromoResolved: {TxStateCommitted, TxStateRejected},
}

func CanTxTransitionTo(current, target TxState) bool {
	allowed, exists := ValidTxTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

func (s TxState) Terminal() bool {
	return s == TxStateCommitted || s == TxStateRejected
}
