package catalog

import "testing"

func TestDemandManagerApply(t *testing.T) {
	m := NewDemandManager()

	m.Apply(BidderEvent{Kind: Added, Bidder: Bidder{Code: "appnexus", Enabled: true}})
	if _, ok := m.Get("appnexus"); !ok {
		t.Fatal("expected appnexus to be present after Added event")
	}
	if m.Count() != 1 {
		t.Fatalf("expected count 1, got %d", m.Count())
	}

	m.Apply(BidderEvent{Kind: Modified, Bidder: Bidder{Code: "appnexus", Enabled: false}})
	if b, _ := m.Get("appnexus"); b.Enabled {
		t.Fatal("expected appnexus disabled after Modified event")
	}
	if m.Count() != 0 {
		t.Fatalf("expected count 0 after disabling, got %d", m.Count())
	}

	m.Apply(BidderEvent{Kind: Removed, Bidder: Bidder{Code: "appnexus"}})
	if _, ok := m.Get("appnexus"); ok {
		t.Fatal("expected appnexus gone after Removed event")
	}
}

func TestDiffBidders(t *testing.T) {
	prev := map[string]Bidder{
		"a": {Code: "a", Enabled: true, Status: "active"},
		"b": {Code: "b", Enabled: true, Status: "active"},
	}
	next := map[string]Bidder{
		"a": {Code: "a", Enabled: false, Status: "disabled"},
		"c": {Code: "c", Enabled: true, Status: "active"},
	}

	events := diffBidders(prev, next)
	kinds := map[string]EventKind{}
	for _, ev := range events {
		kinds[ev.Bidder.Code] = ev.Kind
	}

	if kinds["a"] != Modified {
		t.Errorf("expected a Modified, got %v", kinds["a"])
	}
	if kinds["c"] != Added {
		t.Errorf("expected c Added, got %v", kinds["c"])
	}
	if kinds["b"] != Removed {
		t.Errorf("expected b Removed, got %v", kinds["b"])
	}
}
