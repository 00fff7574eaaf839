package enums

import "fmt"

// WalletType distinguishes the prepaid spunta credit from the annual concession fee wallet.
type WalletType string

const (
	WalletTypeItinerantCredit WalletType = "itinerant_credit"
	WalletTypeConcessionFee   WalletType = "concession_fee"
)

var validWalletTypes = []WalletType{
	WalletTypeItinerantCredit,
	WalletTypeConcessionFee,
}

// String implements fmt.Stringer.
func (w WalletType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletType.
func (w WalletType) IsValid() bool {
	for _, candidate := range validWalletTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletType converts raw input into a WalletType.
func ParseWalletType(value string) (WalletType, error) {
	for _, candidate := range validWalletTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet type %q", value)
}
