package demandclient

import "github.com/nexusrtb/catalyst/internal/openrtb"

// State is a callout's outcome, mirroring BidderResponse's state enum.
type State int

const (
	StateBid State = iota
	StateNoBid
	StateTimeout
	StateError
	StateUnknown
	// stateEmpty200 marks a 200 with an empty body. It is not one of the
	// exported outcomes, but Call returns it as the Result's State and the
	// auction's callout stage stores it unchanged; nothing later rewrites
	// it to Timeout.
	stateEmpty200
)

// Result is one callout's classified outcome.
type Result struct {
	State      State
	HTTPStatus int
	Err        error
	NBR        *int
	Response   *openrtb.BidResponse
	Message    string
}

// classifyBody applies NBR/empty-seatbid detection once a 200 body has
// been decoded; separated from classify so decode only happens once.
func classifyBody(resp *openrtb.BidResponse) Result {
	if resp.NBR > 0 || len(resp.SeatBid) == 0 {
		var nbr *int
		if resp.NBR > 0 {
			n := resp.NBR
			nbr = &n
		}
		return Result{State: StateNoBid, HTTPStatus: 200, NBR: nbr, Response: resp}
	}
	return Result{State: StateBid, HTTPStatus: 200, Response: resp}
}
