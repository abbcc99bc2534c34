package metering

import (
	"errors"
	"testing"

	"bilancio/internal/core"
)

func TestGroupedPaymentsIsOrderIndependent(t *testing.T) {
	payments := []core.MeterPayment{
		{Meter: "e1", Date: core.NewDate(2024, 1, 10), Value: core.Euro(10), Bill: "B1"},
		{Meter: "e1", Date: core.NewDate(2024, 3, 10), Value: core.Euro(15), Bill: "B1"},
		{Meter: "e1", Date: core.NewDate(2024, 2, 10), Value: core.Euro(20), Bill: "B2"},
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}

	for _, order := range orders {
		in := make([]core.MeterPayment, 0, len(order))
		for _, i := range order {
			in = append(in, payments[i])
		}
		groups, err := GroupedPayments(in)
		if err != nil {
			t.Fatalf("GroupedPayments() error = %v", err)
		}
		if len(groups) != 2 {
			t.Fatalf("order %v: expected 2 groups, got %d", order, len(groups))
		}
		byBill := map[core.BillID]PaymentGroup{}
		for _, g := range groups {
			byBill[g.Bill] = g
		}
		b1, b2 := byBill["B1"], byBill["B2"]
		if b1.Sum.Amount != 25 || b2.Sum.Amount != 20 {
			t.Errorf("order %v: sums = %v/%v, want 25/20", order, b1.Sum.Amount, b2.Sum.Amount)
		}
		if !b1.From.Equal(core.NewDate(2024, 1, 10).Time) || !b1.To.Equal(core.NewDate(2024, 3, 10).Time) {
			t.Errorf("order %v: B1 range = %v..%v", order, b1.From, b1.To)
		}
		if !b2.From.Equal(b2.To.Time) {
			t.Errorf("order %v: single payment group should have From == To", order)
		}
	}
}

func TestGroupedPaymentsEmpty(t *testing.T) {
	groups, err := GroupedPayments(nil)
	if err != nil || groups == nil || len(groups) != 0 {
		t.Fatalf("expected empty groups, got %v (err=%v)", groups, err)
	}
}

func TestGroupedPaymentsRejectsMixedCurrencies(t *testing.T) {
	_, err := GroupedPayments([]core.MeterPayment{
		{Date: core.NewDate(2024, 1, 1), Value: core.Euro(1), Bill: "B1"},
		{Date: core.NewDate(2024, 1, 2), Value: core.Money{Amount: 1, Currency: "USD"}, Bill: "B1"},
	})
	if !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}
