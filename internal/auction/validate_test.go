package auction

import (
	"testing"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

func validRequest() *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID:     "req1",
		Imp:    []openrtb.Imp{{ID: "imp1", BidFloor: 0.5}},
		Site:   &openrtb.Site{Domain: "example.com"},
		Device: &openrtb.Device{UA: "ua", IP: "1.2.3.4"},
		TMax:   200,
	}
}

func TestStageValidatePassesWellFormedRequest(t *testing.T) {
	c := NewContext(validRequest(), "pub1", nil, "evt1")
	if err := stageValidate(nil, c); err != nil {
		t.Fatalf("expected valid request to pass, got %v", err)
	}
	if c.Blocked {
		t.Fatal("valid request should not be blocked")
	}
}

func TestStageValidateRejectsMissingDeviceDetails(t *testing.T) {
	req := validRequest()
	req.Device = &openrtb.Device{}
	c := NewContext(req, "pub1", nil, "evt1")
	if err := stageValidate(nil, c); err == nil {
		t.Fatal("expected missing ua/ip to fail validation")
	}
	if c.BlockReason != openrtb.NoBidMissingDeviceDetails {
		t.Fatalf("expected NoBidMissingDeviceDetails, got %v", c.BlockReason)
	}
}

func TestStageValidateRejectsMultipleChannels(t *testing.T) {
	req := validRequest()
	req.App = &openrtb.App{Bundle: "com.example.app"}
	c := NewContext(req, "pub1", nil, "evt1")
	if err := stageValidate(nil, c); err == nil {
		t.Fatal("expected site+app combination to fail validation")
	}
	if c.BlockReason != openrtb.NoBidInvalidRequest {
		t.Fatalf("expected NoBidInvalidRequest, got %v", c.BlockReason)
	}
}

func TestStageValidateRejectsTmaxBelowFloor(t *testing.T) {
	req := validRequest()
	req.TMax = 10
	c := NewContext(req, "pub1", nil, "evt1")
	if err := stageValidate(nil, c); err == nil {
		t.Fatal("expected tmax below floor to fail validation")
	}
	if c.BlockReason != openrtb.NoBidInsufficientAuctionTime {
		t.Fatalf("expected NoBidInsufficientAuctionTime, got %v", c.BlockReason)
	}
}

func TestStageJunkFilterBlocksBlocklistedBundle(t *testing.T) {
	req := &openrtb.BidRequest{
		ID:     "req1",
		Imp:    []openrtb.Imp{{ID: "imp1"}},
		App:    &openrtb.App{Bundle: "com.netflix.mediaclient"},
		Device: &openrtb.Device{UA: "ua", IP: "1.2.3.4"},
	}
	c := NewContext(req, "pub1", nil, "evt1")
	if err := stageJunkFilter(nil, c); err == nil {
		t.Fatal("expected netflix bundle to be blocked")
	}
}

func TestStageJunkFilterAllowsOrdinaryBundle(t *testing.T) {
	req := &openrtb.BidRequest{
		ID:     "req1",
		Imp:    []openrtb.Imp{{ID: "imp1"}},
		App:    &openrtb.App{Bundle: "com.example.game"},
		Device: &openrtb.Device{UA: "ua", IP: "1.2.3.4"},
	}
	c := NewContext(req, "pub1", nil, "evt1")
	if err := stageJunkFilter(nil, c); err != nil {
		t.Fatalf("expected ordinary bundle to pass, got %v", err)
	}
}
