package enums

import "fmt"

// TransactionKind maps to the ledger_transaction_kind enum.
type TransactionKind string

const (
	TransactionKindDebitStallUse TransactionKind = "debit_stall_use"
	TransactionKindDeposit       TransactionKind = "deposit"
	TransactionKindFeeCharge     TransactionKind = "fee_charge"
	TransactionKindMoraCharge    TransactionKind = "mora_charge"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindDebitStallUse,
	TransactionKindDeposit,
	TransactionKindFeeCharge,
	TransactionKindMoraCharge,
}

// String implements fmt.Stringer.
func (t TransactionKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionKind.
func (t TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
