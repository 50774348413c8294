package auction

import (
	"context"

	"github.com/google/uuid"
	"github.com/nexusrtb/catalyst/internal/openrtb"
	"github.com/nexusrtb/catalyst/internal/pipeline"
)

// New builds the 23-stage AuctionPipeline in spec order. Each stage is
// independently testable; this file is purely wiring.
func New() *pipeline.Pipeline[AuctionContext] {
	return pipeline.New[AuctionContext]("auction").
		Stage("validate", stageValidate).
		Stage("junk_filter", stageJunkFilter).
		Stage("device_lookup", stageDeviceLookup).
		Stage("ip_block", stageIPBlock).
		Stage("schain_hops_filter", stageSchainHopsFilter).
		Stage("publisher_lookup", stagePublisherLookup).
		Stage("identity_local", stageIdentityLocal).
		Stage("floors_markup", stageFloorsMarkup).
		Stage("bidder_matching", stageBidderMatching).
		Stage("schain_append", stageSchainAppend).
		Stage("identity_demand", stageIdentityDemand).
		Stage("traffic_shaping", stageTrafficShaping).
		Stage("multi_imp_breakout", stageMultiImpBreakout).
		Stage("qps_limit", stageQpsLimit).
		Stage("test_bidder", stageTestBidder).
		Stage("auction_id_assign", stageAuctionIDAssign).
		Stage("bidder_callouts", stageBidderCallouts).
		Stage("notification_create", stageNotificationCreate).
		Stage("notification_inject", stageNotificationInject).
		Stage("bid_margin", stageBidMargin).
		Stage("shaping_train", stageShapingTrain).
		Stage("bid_settlement", stageBidSettlement).
		Finalize("counters", finalizeCounters)
}

// Run drives one request through the pipeline and returns the bid
// response it settled on. A blocked/no-bid outcome is not an error: the
// caller reads AuctionContext.BlockReason and renders the matching NBR
// response itself.
func Run(ctx context.Context, deps *Dependencies, req *openrtb.BidRequest, pubid string, cookies map[string]string) (*AuctionContext, error) {
	eventID := uuid.NewString()
	actx := NewContext(req, pubid, cookies, eventID)
	ctx = withDeps(ctx, deps)

	p := New()
	result := pipeline.Run(ctx, p, actx)
	if !result.Ok() && !actx.Blocked {
		return actx, result.Err
	}
	return actx, nil
}
