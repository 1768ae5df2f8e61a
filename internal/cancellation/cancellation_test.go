package cancellation

import (
	"testing"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

func view(number, typ string) model.OrderView {
	return model.OrderView{Order: model.Order{OrderNumber: number, OrderType: typ}}
}

func TestFlag(t *testing.T) {
	views := []model.OrderView{
		view("112-0001", "Order"),
		view("112-0001", "Cancellation"),
		view("112-0002", "Order"),
	}
	orders := make([]model.Order, len(views))
	for i, v := range views {
		orders[i] = v.Order
	}
	Flag(views, Set(orders))
	want := []bool{true, true, false}
	for i, w := range want {
		if views[i].Cancelled != w {
			t.Fatalf("view %d cancelled = %v, want %v", i, views[i].Cancelled, w)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	for _, s := range []string{"Cancellation", "CANCELLATION", " cancellation "} {
		if !IsCancellation(s) {
			t.Fatalf("expected %q to be a cancellation", s)
		}
	}
	for _, s := range []string{"Order", "Cancelled", ""} {
		if IsCancellation(s) {
			t.Fatalf("expected %q not to be a cancellation", s)
		}
	}
}

func TestOrderNumbersDistinct(t *testing.T) {
	got := OrderNumbers([]model.OrderView{view("b", ""), view("a", ""), view("b", "")})
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected order numbers %v", got)
	}
}
