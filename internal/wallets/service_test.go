package wallets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/dbtest"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/pagination"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), outbox.NewService(outbox.NewRepository(conn), nil), nil, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, conn
}

func ensure(t *testing.T, svc *Service, conn *gorm.DB, walletType enums.WalletType) *models.Wallet {
	t.Helper()
	wallet, err := svc.EnsureWallet(context.Background(), conn, uuid.New(), uuid.New(), walletType)
	if err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	return wallet
}

func apply(t *testing.T, svc *Service, conn *gorm.DB, input ApplyInput) (*Applied, error) {
	t.Helper()
	var applied *Applied
	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		applied, err = svc.ApplyTransaction(context.Background(), tx, input)
		return err
	})
	return applied, err
}

func TestZeroFeeChargeIsRecordedAsWaiver(t *testing.T) {
	svc, conn := newTestService(t)
	wallet := ensure(t, svc, conn, enums.WalletTypeConcessionFee)

	applied, err := apply(t, svc, conn, ApplyInput{
		WalletID:    wallet.ID,
		AmountCents: 0,
		Kind:        enums.TransactionKindFeeCharge,
		Note:        "waived by council",
	})
	if err != nil {
		t.Fatalf("apply waiver: %v", err)
	}
	if applied.BalanceCents != 0 {
		t.Fatalf("expected balance 0, got %d", applied.BalanceCents)
	}

	page, err := svc.History(context.Background(), wallet.ID, pagination.Params{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].AmountCents != 0 || page.Items[0].Kind != enums.TransactionKindFeeCharge {
		t.Fatalf("expected one zero fee_charge row, got %+v", page.Items)
	}
}

func TestApplyTransactionValidatesBeforeWriting(t *testing.T) {
	svc, conn := newTestService(t)
	wallet := ensure(t, svc, conn, enums.WalletTypeItinerantCredit)

	cases := []struct {
		name  string
		input ApplyInput
		code  pkgerrors.Code
	}{
		{"zero deposit", ApplyInput{WalletID: wallet.ID, Kind: enums.TransactionKindDeposit}, pkgerrors.CodeInvalidAmount},
		{"negative deposit", ApplyInput{WalletID: wallet.ID, AmountCents: -5, Kind: enums.TransactionKindDeposit}, pkgerrors.CodeInvalidAmount},
		{"zero mora", ApplyInput{WalletID: wallet.ID, Kind: enums.TransactionKindMoraCharge}, pkgerrors.CodeInvalidAmount},
		{"positive charge", ApplyInput{WalletID: wallet.ID, AmountCents: 100, Kind: enums.TransactionKindDebitStallUse}, pkgerrors.CodeInvalidAmount},
		{"unknown kind", ApplyInput{WalletID: wallet.ID, AmountCents: 100, Kind: "refund"}, pkgerrors.CodeValidation},
		{"unknown wallet", ApplyInput{WalletID: uuid.New(), AmountCents: 100, Kind: enums.TransactionKindDeposit}, pkgerrors.CodeWalletNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := apply(t, svc, conn, tc.input); !pkgerrors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	var count int64
	if err := conn.Model(&models.LedgerTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ledger rows, got %d", count)
	}
}

func TestInsufficientCreditLeavesNoTrace(t *testing.T) {
	svc, conn := newTestService(t)
	wallet := ensure(t, svc, conn, enums.WalletTypeItinerantCredit)
	if _, err := svc.Deposit(context.Background(), DepositInput{WalletID: wallet.ID, AmountCents: 500, Reference: "pagopa-1"}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := apply(t, svc, conn, ApplyInput{
		WalletID:           wallet.ID,
		AmountCents:        -501,
		Kind:               enums.TransactionKindDebitStallUse,
		RequireNonNegative: true,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}

	current, err := svc.Balance(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if current.BalanceCents != 500 {
		t.Fatalf("expected balance 500, got %d", current.BalanceCents)
	}
}

func TestBalanceMatchesLedgerSum(t *testing.T) {
	svc, conn := newTestService(t)
	wallet := ensure(t, svc, conn, enums.WalletTypeConcessionFee)

	movements := []ApplyInput{
		{WalletID: wallet.ID, AmountCents: 10514, Kind: enums.TransactionKindDeposit},
		{WalletID: wallet.ID, AmountCents: -10000, Kind: enums.TransactionKindFeeCharge},
		{WalletID: wallet.ID, AmountCents: -514, Kind: enums.TransactionKindMoraCharge},
		{WalletID: wallet.ID, AmountCents: 2000, Kind: enums.TransactionKindDeposit},
		{WalletID: wallet.ID, AmountCents: -750, Kind: enums.TransactionKindDebitStallUse},
	}
	for _, m := range movements {
		if _, err := apply(t, svc, conn, m); err != nil {
			t.Fatalf("apply %s: %v", m.Kind, err)
		}
	}

	rec, err := svc.Reconcile(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent || rec.StoredCents != 1250 || rec.LedgerCents != 1250 {
		t.Fatalf("unexpected reconciliation %+v", rec)
	}

	if err := conn.Model(&models.Wallet{}).Where("id = ?", wallet.ID).Update("balance_cents", 1).Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := svc.Reconcile(context.Background(), wallet.ID); !pkgerrors.HasCode(err, pkgerrors.CodeLedgerMismatch) {
		t.Fatalf("expected ledger mismatch, got %v", err)
	}
}

func TestEnsureWalletIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	vendorID, marketID := uuid.New(), uuid.New()

	first, err := svc.EnsureWallet(context.Background(), conn, vendorID, marketID, enums.WalletTypeItinerantCredit)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := svc.EnsureWallet(context.Background(), conn, vendorID, marketID, enums.WalletTypeItinerantCredit)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same wallet, got %s and %s", first.ID, second.ID)
	}
	other, err := svc.EnsureWallet(context.Background(), conn, vendorID, marketID, enums.WalletTypeConcessionFee)
	if err != nil {
		t.Fatalf("fee wallet: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("wallet types must not share a row")
	}
}

func TestHistoryPaginates(t *testing.T) {
	svc, conn := newTestService(t)
	wallet := ensure(t, svc, conn, enums.WalletTypeItinerantCredit)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		if _, err := apply(t, svc, conn, ApplyInput{WalletID: wallet.ID, AmountCents: int64(100 * (i + 1)), Kind: enums.TransactionKindDeposit}); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	first, err := svc.History(context.Background(), wallet.ID, pagination.Params{Limit: 3})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 3 || first.NextCursor == "" || first.Items[0].AmountCents != 500 {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := svc.History(context.Background(), wallet.ID, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 2 || second.NextCursor != "" || second.Items[1].AmountCents != 100 {
		t.Fatalf("unexpected second page %+v", second)
	}

	other := ensure(t, svc, conn, enums.WalletTypeConcessionFee)
	_, err = svc.History(context.Background(), other.ID, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected cursor from another wallet to be rejected, got %v", err)
	}
}

func TestApplyTransactionEmitsEventAndMetrics(t *testing.T) {
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewAllocationMetrics(reg)
	outboxRepo := outbox.NewRepository(conn)
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), outbox.NewService(outboxRepo, nil), nil, m, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	wallet := ensure(t, svc, conn, enums.WalletTypeItinerantCredit)
	if _, err := svc.Deposit(context.Background(), DepositInput{WalletID: wallet.ID, AmountCents: 2500}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	events, err := outboxRepo.ListByAggregate(enums.AggregateWallet, wallet.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != enums.EventLedgerRecorded {
		t.Fatalf("expected one ledger event, got %+v", events)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var deposits float64
	for _, mf := range mfs {
		if mf.GetName() != "dmshub_ledger_transactions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "kind" && label.GetValue() == "deposit" {
					deposits = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if deposits != 1 {
		t.Fatalf("expected 1 deposit counted, got %v", deposits)
	}
}
