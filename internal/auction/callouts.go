package auction

import (
	"context"
	"sync"
	"time"

	"github.com/nexusrtb/catalyst/internal/demandclient"
)

// stageBidderCallouts enforces spec.md §4.2 stage 17 / §4.4: every live
// callout is fanned out concurrently under one wall-clock deadline; a
// callout that doesn't report back in time is reaped as Timeout.
func stageBidderCallouts(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	req := c.Req()
	deadline := demandclient.Deadline(req.TMax)
	c.TMaxDeadline = deadline

	calloutCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, bidder := range c.Bidders() {
		if bidder.IsTest {
			continue
		}
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone {
				continue
			}
			wg.Add(1)
			go func(callout *BidderCallout) {
				defer wg.Done()
				runCallout(calloutCtx, deps, callout)
			}(callout)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-calloutCtx.Done():
		// Outstanding callouts remain pending; their goroutines finish on
		// their own and discard results, per spec.md §5 cancellation model.
	}
	return nil
}

func runCallout(ctx context.Context, deps *Dependencies, callout *BidderCallout) {
	start := time.Now()
	body, contentType, err := demandclient.EncodeRequest(callout.Request, encodingOf(callout.Endpoint.Protocol))
	if err != nil {
		callout.State = demandclient.StateError
		callout.Err = err
		return
	}

	spec := demandclient.EndpointSpec{
		URL:       callout.Endpoint.URL,
		Transport: transportOf(callout.Endpoint.Transport),
		Encoding:  encodingOf(callout.Endpoint.Protocol),
		Gzip:      callout.Endpoint.Gzip,
	}
	result := deps.DemandHTTP.Call(ctx, spec, body, contentType)
	callout.Latency = time.Since(start)
	callout.State = result.State
	callout.NBR = result.NBR
	callout.Err = result.Err
	if result.Response != nil {
		callout.Response = &BidResponseContext{Response: result.Response}
	}
}

func transportOf(t string) demandclient.Transport {
	switch t {
	case "h2":
		return demandclient.TransportH2
	case "h2c":
		return demandclient.TransportH2C
	default:
		return demandclient.TransportH1
	}
}

func encodingOf(p string) demandclient.Encoding {
	if p == "protobuf" {
		return demandclient.EncodingProtobuf
	}
	return demandclient.EncodingJSON
}
