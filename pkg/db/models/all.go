package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// sqlite mode and tests.
func All() []any {
	return []any{
		&Market{},
		&Vendor{},
		&Concession{},
		&Stall{},
		&Wallet{},
		&LedgerTransaction{},
		&AttendanceRecord{},
		&FeeSchedule{},
		&MarketDaySession{},
		&OutboxEvent{},
	}
}
