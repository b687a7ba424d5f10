package documents

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

var (
	admin   = access.Principal{ID: 1, Role: access.RoleAdmin}
	manager = access.Principal{ID: 2, Role: access.RoleWarehouseManager, WarehouseScope: []int64{w1}}
	staff   = access.Principal{ID: 3, Role: access.RoleSalesStaff, WarehouseScope: []int64{w1}}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) approve(t *testing.T, p access.Principal, family Family, in CreateInput) Document {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), p, family, in)
	require.NoError(t, err)
	approved, err := f.svc.Approve(context.Background(), p, family, doc.ID)
	require.NoError(t, err)
	return approved
}

func (f *fixture) receive(t *testing.T, warehouse, product, qty int64) Document {
	t.Helper()
	return f.approve(t, admin, FamilyGRN, CreateInput{
		WarehouseID: warehouse,
		Party:       "Acme Supplies",
		Lines:       []LineInput{{ProductID: product, Quantity: qty}},
	})
}

func (f *fixture) invoice(t *testing.T, qty int64) Document {
	t.Helper()
	return f.approve(t, admin, FamilySalesInvoice, CreateInput{
		WarehouseID: w1,
		CustomerID:  custC,
		Lines:       []LineInput{{ProductID: productX, Quantity: qty, Rate: dec("100"), TaxPercent: dec("18")}},
	})
}

func (f *fixture) invoiceDoc(t *testing.T, id int64) Document {
	t.Helper()
	doc, err := f.repo.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestGRNThenDispatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	grn := f.receive(t, w1, productX, 50)
	require.Equal(t, "GRN-000001", grn.Number)
	require.Equal(t, StatusApproved, grn.Status)
	require.Equal(t, admin.ID, grn.ApprovedBy)
	require.EqualValues(t, 50, f.repo.quantity(w1, productX))
	moves := f.repo.movementsOf(grn.ID)
	require.Len(t, moves, 1)
	require.Equal(t, inventory.DirectionIn, moves[0].Direction)
	require.Equal(t, inventory.TxGRN, moves[0].TxType)

	dispatch := f.approve(t, admin, FamilyDispatch, CreateInput{
		WarehouseID: w1,
		Lines:       []LineInput{{ProductID: productX, Quantity: 30}},
	})
	require.Equal(t, "DSP-000001", dispatch.Number)
	require.EqualValues(t, 20, f.repo.quantity(w1, productX))

	second, err := f.svc.Create(ctx, admin, FamilyDispatch, CreateInput{
		WarehouseID: w1,
		Lines:       []LineInput{{ProductID: productX, Quantity: 30}},
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, FamilyDispatch, second.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.EqualValues(t, 20, f.repo.quantity(w1, productX))
	require.Empty(t, f.repo.movementsOf(second.ID))

	stored, err := f.svc.Get(ctx, admin, FamilyDispatch, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestInvoiceReceiptAndReturn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)

	inv := f.invoice(t, 2)
	require.Equal(t, "INV-000001", inv.Number)
	require.Equal(t, "236.00", inv.GrandTotal.StringFixed(2))
	require.Equal(t, "236.00", inv.DueAmount.StringFixed(2))
	require.Equal(t, PaymentCredit, inv.PaymentMode)
	require.EqualValues(t, 8, f.repo.quantity(w1, productX))

	entries := f.repo.entriesOf(custC)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.RefInvoice, entries[0].RefType)
	require.Equal(t, "236.00", entries[0].Debit.StringFixed(2))
	require.Equal(t, "236.00", entries[0].BalanceAfter.StringFixed(2))

	receipt := f.approve(t, staff, FamilyReceipt, CreateInput{
		CustomerID:  custC,
		InvoiceID:   inv.ID,
		Amount:      dec("100"),
		PaymentMode: PaymentCash,
	})
	require.Equal(t, "RCP-000001", receipt.Number)
	inv = f.invoiceDoc(t, inv.ID)
	require.Equal(t, "100.00", inv.PaidAmount.StringFixed(2))
	require.Equal(t, "136.00", inv.DueAmount.StringFixed(2))

	entries = f.repo.entriesOf(custC)
	require.Len(t, entries, 2)
	require.Equal(t, "100.00", entries[1].Credit.StringFixed(2))
	require.Equal(t, "136.00", entries[1].BalanceAfter.StringFixed(2))

	ret, err := f.svc.Create(ctx, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productX, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, w1, ret.WarehouseID)
	require.Equal(t, "118.00", ret.GrandTotal.StringFixed(2))

	_, err = f.svc.Approve(ctx, admin, FamilySalesReturn, ret.ID)
	require.NoError(t, err)
	inv = f.invoiceDoc(t, inv.ID)
	require.Equal(t, "118.00", inv.GrandTotal.StringFixed(2))
	require.Equal(t, "18.00", inv.DueAmount.StringFixed(2))
	require.EqualValues(t, 9, f.repo.quantity(w1, productX))

	entries = f.repo.entriesOf(custC)
	require.Len(t, entries, 3)
	require.Equal(t, ledger.RefReturn, entries[2].RefType)
	require.Equal(t, "18.00", entries[2].BalanceAfter.StringFixed(2))
	require.Empty(t, ledger.Verify(f.repo.state.entries))
}

func TestApproveTwiceIsInvalidState(t *testing.T) {
	f := newFixture()
	grn := f.receive(t, w1, productX, 5)

	_, err := f.svc.Approve(context.Background(), admin, FamilyGRN, grn.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualValues(t, 5, f.repo.quantity(w1, productX))
	require.Len(t, f.repo.movementsOf(grn.ID), 1)
}

func TestApproveWrongFamilyIsNotFound(t *testing.T) {
	f := newFixture()
	doc, err := f.svc.Create(context.Background(), admin, FamilyGRN, CreateInput{
		WarehouseID: w1,
		Lines:       []LineInput{{ProductID: productX, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), admin, FamilyDispatch, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransferConservesStock(t *testing.T) {
	f := newFixture()
	f.receive(t, w1, productX, 40)

	transfer := f.approve(t, admin, FamilyTransfer, CreateInput{
		WarehouseID:     w1,
		DestWarehouseID: w2,
		Lines:           []LineInput{{ProductID: productX, Quantity: 15}},
	})
	require.EqualValues(t, 25, f.repo.quantity(w1, productX))
	require.EqualValues(t, 15, f.repo.quantity(w2, productX))

	moves := f.repo.movementsOf(transfer.ID)
	require.Len(t, moves, 2)
	var net int64
	for _, m := range moves {
		net += m.Signed()
	}
	require.Zero(t, net)

	_, err := f.svc.Create(context.Background(), admin, FamilyTransfer, CreateInput{
		WarehouseID:     w1,
		DestWarehouseID: w1,
		Lines:           []LineInput{{ProductID: productX, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestShortLineLeavesNoPartialWrites(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)

	doc, err := f.svc.Create(ctx, admin, FamilyTransfer, CreateInput{
		WarehouseID:     w1,
		DestWarehouseID: w2,
		Lines: []LineInput{
			{ProductID: productX, Quantity: 5},
			{ProductID: productY, Quantity: 3},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, admin, FamilyTransfer, doc.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.EqualValues(t, 10, f.repo.quantity(w1, productX))
	require.Zero(t, f.repo.quantity(w2, productX))
	require.Empty(t, f.repo.movementsOf(doc.ID))
}

func TestLedgerFailureRollsBackStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)

	doc, err := f.svc.Create(ctx, admin, FamilySalesInvoice, CreateInput{
		WarehouseID: w1,
		CustomerID:  custC,
		Lines:       []LineInput{{ProductID: productX, Quantity: 2, Rate: dec("50")}},
	})
	require.NoError(t, err)

	f.repo.failEntries = errors.New("connection reset")
	_, err = f.svc.Approve(ctx, admin, FamilySalesInvoice, doc.ID)
	require.Error(t, err)
	require.Equal(t, shared.KindInternal, shared.KindOf(err))

	require.EqualValues(t, 10, f.repo.quantity(w1, productX))
	require.Empty(t, f.repo.movementsOf(doc.ID))
	require.Equal(t, StatusDraft, f.invoiceDoc(t, doc.ID).Status)
	require.Equal(t, []transitionCall{
		{family: string(FamilyGRN), action: actionCreate},
		{family: string(FamilyGRN), action: actionApprove},
		{family: string(FamilySalesInvoice), action: actionCreate},
		{family: string(FamilySalesInvoice), action: actionApprove, failed: true},
	}, f.observer.calls)
}

func TestReceiptValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.invoice(t, 1)

	draft, err := f.svc.Create(ctx, admin, FamilySalesInvoice, CreateInput{
		WarehouseID: w1,
		CustomerID:  custC,
		Lines:       []LineInput{{ProductID: productX, Quantity: 1, Rate: dec("10")}},
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"zero amount", CreateInput{CustomerID: custC, Amount: decimal.Zero, PaymentMode: PaymentCash}},
		{"credit mode", CreateInput{CustomerID: custC, Amount: dec("10"), PaymentMode: PaymentCredit}},
		{"missing mode", CreateInput{CustomerID: custC, Amount: dec("10")}},
		{"unknown customer", CreateInput{CustomerID: 999, Amount: dec("10"), PaymentMode: PaymentCash}},
		{"over due", CreateInput{CustomerID: custC, InvoiceID: inv.ID, Amount: dec("118.01"), PaymentMode: PaymentBank}},
		{"draft invoice", CreateInput{CustomerID: custC, InvoiceID: draft.ID, Amount: dec("1"), PaymentMode: PaymentBank}},
		{"other customer", CreateInput{CustomerID: custD, InvoiceID: inv.ID, Amount: dec("1"), PaymentMode: PaymentBank}},
		{"with lines", CreateInput{CustomerID: custC, Amount: dec("1"), PaymentMode: PaymentUPI, Lines: []LineInput{{ProductID: productX, Quantity: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, admin, FamilyReceipt, tc.in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	onAccount := f.approve(t, admin, FamilyReceipt, CreateInput{CustomerID: custD, Amount: dec("25.5"), PaymentMode: PaymentCheque})
	require.Equal(t, "25.50", onAccount.Amount.StringFixed(2))
	entries := f.repo.entriesOf(custD)
	require.Len(t, entries, 1)
	require.Equal(t, "-25.50", entries[0].BalanceAfter.StringFixed(2))
}

func TestReceiptOverDueAtApprovalConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.invoice(t, 2)

	in := CreateInput{CustomerID: custC, InvoiceID: inv.ID, Amount: dec("200"), PaymentMode: PaymentBank}
	first, err := f.svc.Create(ctx, admin, FamilyReceipt, in)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, admin, FamilyReceipt, in)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, admin, FamilyReceipt, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, FamilyReceipt, second.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	inv = f.invoiceDoc(t, inv.ID)
	require.Equal(t, "200.00", inv.PaidAmount.StringFixed(2))
	require.Equal(t, "36.00", inv.DueAmount.StringFixed(2))
	require.Len(t, f.repo.entriesOf(custC), 2)
}

func TestCancelInvoiceAfterReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.invoice(t, 2)
	receipt := f.approve(t, admin, FamilyReceipt, CreateInput{CustomerID: custC, InvoiceID: inv.ID, Amount: dec("100"), PaymentMode: PaymentCard})

	_, err := f.svc.Cancel(ctx, admin, FamilySalesInvoice, inv.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	cancelled, err := f.svc.Cancel(ctx, admin, FamilyReceipt, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	inv = f.invoiceDoc(t, inv.ID)
	require.True(t, inv.PaidAmount.IsZero())
	require.Equal(t, "236.00", inv.DueAmount.StringFixed(2))

	_, err = f.svc.Cancel(ctx, admin, FamilySalesInvoice, inv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, f.repo.quantity(w1, productX))
	entries := f.repo.entriesOf(custC)
	require.Len(t, entries, 4)
	require.True(t, entries[3].BalanceAfter.IsZero())
	require.Empty(t, ledger.Verify(f.repo.state.entries))

	_, err = f.svc.Cancel(ctx, admin, FamilySalesInvoice, inv.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCancelReturnRestoresInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.invoice(t, 2)
	ret := f.approve(t, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productX, Quantity: 2}},
	})
	require.EqualValues(t, 10, f.repo.quantity(w1, productX))
	require.True(t, f.invoiceDoc(t, inv.ID).GrandTotal.IsZero())

	_, err := f.svc.Cancel(ctx, admin, FamilySalesReturn, ret.ID)
	require.NoError(t, err)
	inv = f.invoiceDoc(t, inv.ID)
	require.Equal(t, "236.00", inv.GrandTotal.StringFixed(2))
	require.Equal(t, "236.00", inv.DueAmount.StringFixed(2))
	require.EqualValues(t, 8, f.repo.quantity(w1, productX))
}

func TestStockFamiliesCannotBeCancelled(t *testing.T) {
	f := newFixture()
	grn := f.receive(t, w1, productX, 5)
	_, err := f.svc.Cancel(context.Background(), admin, FamilyGRN, grn.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualValues(t, 5, f.repo.quantity(w1, productX))
}

func TestReturnLimits(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.invoice(t, 2)

	_, err := f.svc.Create(ctx, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productX, Quantity: 3}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productY, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	in := CreateInput{CustomerID: custC, InvoiceID: inv.ID, Lines: []LineInput{{ProductID: productX, Quantity: 2}}}
	first, err := f.svc.Create(ctx, admin, FamilySalesReturn, in)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, admin, FamilySalesReturn, in)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, admin, FamilySalesReturn, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, FamilySalesReturn, second.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.EqualValues(t, 10, f.repo.quantity(w1, productX))
}

func TestAdjustStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 50)

	res, err := f.svc.AdjustStock(ctx, admin, AdjustInput{WarehouseID: w1, ProductID: productX, NewQuantity: 45, Notes: "cycle count"})
	require.NoError(t, err)
	require.Equal(t, "ADJ-000001", res.Number)
	require.EqualValues(t, 50, res.PreviousQuantity)
	require.EqualValues(t, 45, res.NewQuantity)
	require.EqualValues(t, 45, f.repo.quantity(w1, productX))

	moves := f.repo.movementsOf(res.DocumentID)
	require.Len(t, moves, 1)
	require.Equal(t, inventory.TxAdjustmentNegative, moves[0].TxType)
	require.EqualValues(t, 5, moves[0].Quantity)

	res, err = f.svc.AdjustStock(ctx, admin, AdjustInput{WarehouseID: w1, ProductID: productY, NewQuantity: 12})
	require.NoError(t, err)
	require.Zero(t, res.PreviousQuantity)
	require.EqualValues(t, 12, f.repo.quantity(w1, productY))

	_, err = f.svc.AdjustStock(ctx, manager, AdjustInput{WarehouseID: w1, ProductID: productX, NewQuantity: 1})
	require.ErrorIs(t, err, shared.ErrAccessDenied)
	_, err = f.svc.AdjustStock(ctx, admin, AdjustInput{WarehouseID: w1, ProductID: productX, NewQuantity: -1})
	require.ErrorIs(t, err, shared.ErrValidation)

	history, err := f.svc.History(ctx, admin, FamilyAdjustment, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, shared.ApprovalApprove, history[0].Action)
}

func TestAdjustmentDocumentUsesOnHandAtApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)

	adj, err := f.svc.Create(ctx, admin, FamilyAdjustment, CreateInput{
		WarehouseID: w1,
		Lines:       []LineInput{{ProductID: productX, TargetQuantity: 4}},
	})
	require.NoError(t, err)
	f.receive(t, w1, productX, 6)

	_, err = f.svc.Approve(ctx, admin, FamilyAdjustment, adj.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, f.repo.quantity(w1, productX))
	moves := f.repo.movementsOf(adj.ID)
	require.Len(t, moves, 1)
	require.EqualValues(t, 12, moves[0].Quantity)
}

func TestWarehouseScopeEnforced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, manager, FamilyGRN, CreateInput{WarehouseID: w2, Lines: []LineInput{{ProductID: productX, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrAccessDenied)

	_, err = f.svc.Create(ctx, manager, FamilyTransfer, CreateInput{WarehouseID: w1, DestWarehouseID: w2, Lines: []LineInput{{ProductID: productX, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrAccessDenied)

	_, err = f.svc.Create(ctx, access.Principal{ID: 9, Role: access.RoleSalesStaff}, FamilyReceipt, CreateInput{CustomerID: custC, Amount: dec("1"), PaymentMode: PaymentCash})
	require.ErrorIs(t, err, shared.ErrAccessDenied)

	doc, err := f.svc.Create(ctx, admin, FamilyGRN, CreateInput{WarehouseID: w2, Lines: []LineInput{{ProductID: productX, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, manager, FamilyGRN, doc.ID)
	require.ErrorIs(t, err, shared.ErrAccessDenied)
	_, err = f.svc.Get(ctx, manager, FamilyGRN, doc.ID)
	require.ErrorIs(t, err, shared.ErrAccessDenied)

	mine := f.approve(t, manager, FamilyGRN, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX, Quantity: 1}}})
	docs, meta, err := f.svc.List(ctx, manager, ListFilter{Family: FamilyGRN}, shared.PageRequest{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, mine.ID, docs[0].ID)
	require.Equal(t, 1, meta.Total)

	docs, _, err = f.svc.List(ctx, admin, ListFilter{Family: FamilyGRN}, shared.PageRequest{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name   string
		family Family
		in     CreateInput
	}{
		{"no lines", FamilyGRN, CreateInput{WarehouseID: w1}},
		{"zero quantity", FamilyGRN, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX}}}},
		{"unknown product", FamilyDispatch, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: 404, Quantity: 1}}}},
		{"unknown warehouse", FamilyGRN, CreateInput{WarehouseID: 404, Lines: []LineInput{{ProductID: productX, Quantity: 1}}}},
		{"inactive warehouse", FamilyGRN, CreateInput{WarehouseID: wInactive, Lines: []LineInput{{ProductID: productX, Quantity: 1}}}},
		{"missing warehouse", FamilyDispatch, CreateInput{Lines: []LineInput{{ProductID: productX, Quantity: 1}}}},
		{"negative target", FamilyAdjustment, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX, TargetQuantity: -1}}}},
		{"duplicate adjustment", FamilyAdjustment, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX}, {ProductID: productX, TargetQuantity: 2}}}},
		{"invoice without customer", FamilySalesInvoice, CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX, Quantity: 1}}}},
		{"discount above amount", FamilySalesInvoice, CreateInput{WarehouseID: w1, CustomerID: custC, Lines: []LineInput{{ProductID: productX, Quantity: 1, Rate: dec("5"), Discount: dec("6")}}}},
		{"unknown family", Family("PURCHASE_ORDER"), CreateInput{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), admin, tc.family, tc.in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateIdempotencyKey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in := CreateInput{WarehouseID: w1, IdempotencyKey: "req-1", Lines: []LineInput{{ProductID: productX, Quantity: 1}}}

	_, err := f.svc.Create(ctx, admin, FamilyGRN, in)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, admin, FamilyGRN, in)
	require.ErrorIs(t, err, shared.ErrConflict)

	dispatch, err := f.svc.Create(ctx, admin, FamilyDispatch, in)
	require.NoError(t, err)
	require.Equal(t, "DSP-000001", dispatch.Number)
	require.True(t, f.idem.keys["GRN:req-1"])
}

func TestPackingFieldsDoNotScaleQuantity(t *testing.T) {
	f := newFixture()
	grn := f.approve(t, admin, FamilyGRN, CreateInput{
		WarehouseID: w1,
		Lines:       []LineInput{{ProductID: productX, Quantity: 24, PackingType: "BOX", PackSize: 12}},
	})
	require.Equal(t, "BOX", grn.Lines[0].PackingType)
	require.EqualValues(t, 24, f.repo.quantity(w1, productX))
}

func TestAdjustmentDocumentsRequireElevatedRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 50)
	in := CreateInput{WarehouseID: w1, Lines: []LineInput{{ProductID: productX, TargetQuantity: 0}}}

	_, err := f.svc.Create(ctx, manager, FamilyAdjustment, in)
	require.ErrorIs(t, err, shared.ErrAccessDenied)

	adj, err := f.svc.Create(ctx, admin, FamilyAdjustment, in)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, manager, FamilyAdjustment, adj.ID)
	require.ErrorIs(t, err, shared.ErrAccessDenied)
	require.EqualValues(t, 50, f.repo.quantity(w1, productX))

	stored, err := f.svc.Get(ctx, admin, FamilyAdjustment, adj.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestReturnPricedFromDiscountedInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.receive(t, w1, productX, 10)
	inv := f.approve(t, admin, FamilySalesInvoice, CreateInput{
		WarehouseID: w1,
		CustomerID:  custC,
		Lines:       []LineInput{{ProductID: productX, Quantity: 2, Rate: dec("100"), Discount: dec("100")}},
	})
	require.Equal(t, "100.00", inv.GrandTotal.StringFixed(2))

	_, err := f.svc.Create(ctx, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productX, Quantity: 1, Rate: dec("100")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	ret := f.approve(t, admin, FamilySalesReturn, CreateInput{
		CustomerID: custC,
		InvoiceID:  inv.ID,
		Lines:      []LineInput{{ProductID: productX, Quantity: 1}},
	})
	require.Equal(t, "50.00", ret.Lines[0].Discount.StringFixed(2))
	require.Equal(t, "50.00", ret.GrandTotal.StringFixed(2))

	inv = f.invoiceDoc(t, inv.ID)
	require.Equal(t, "50.00", inv.GrandTotal.StringFixed(2))
	entries := f.repo.entriesOf(custC)
	require.Len(t, entries, 2)
	require.Equal(t, "50.00", entries[1].Credit.StringFixed(2))
	require.Equal(t, "50.00", entries[1].BalanceAfter.StringFixed(2))
}

// firstLocks drops repeated keys, leaving the order levels were first locked.
func firstLocks(keys []inventory.Key) []inventory.Key {
	seen := make(map[inventory.Key]bool, len(keys))
	var out []inventory.Key
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func TestApprovalLocksLevelsInSortedOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	requireSorted := func(keys []inventory.Key) {
		t.Helper()
		want := slices.Clone(keys)
		inventory.SortKeys(want)
		require.Equal(t, want, keys)
	}

	grn, err := f.svc.Create(ctx, admin, FamilyGRN, CreateInput{
		WarehouseID: w2,
		Lines:       []LineInput{{ProductID: productY, Quantity: 5}, {ProductID: productX, Quantity: 5}},
	})
	require.NoError(t, err)
	f.repo.locked = nil
	_, err = f.svc.Approve(ctx, admin, FamilyGRN, grn.ID)
	require.NoError(t, err)
	locks := firstLocks(f.repo.locked)
	require.Len(t, locks, 2)
	requireSorted(locks)

	transfer, err := f.svc.Create(ctx, admin, FamilyTransfer, CreateInput{
		WarehouseID:     w2,
		DestWarehouseID: w1,
		Lines:           []LineInput{{ProductID: productY, Quantity: 1}, {ProductID: productX, Quantity: 1}},
	})
	require.NoError(t, err)
	f.repo.locked = nil
	_, err = f.svc.Approve(ctx, admin, FamilyTransfer, transfer.ID)
	require.NoError(t, err)
	locks = firstLocks(f.repo.locked)
	require.Len(t, locks, 4)
	requireSorted(locks)
}
