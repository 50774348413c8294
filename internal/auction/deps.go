package auction

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/demandclient"
	"github.com/nexusrtb/catalyst/internal/fpd"
	"github.com/nexusrtb/catalyst/internal/notify"
	"github.com/nexusrtb/catalyst/internal/qpslimiter"
	"github.com/nexusrtb/catalyst/internal/shaping"
	"github.com/nexusrtb/catalyst/internal/usersync"
)

// DeviceInfo is what the out-of-scope UA lookup resolves a user-agent to.
type DeviceInfo struct {
	DevType DeviceClass
	Brand   string
	Model   string
	OS      string
}

// DeviceClass mirrors the spec's device-lookup classification.
type DeviceClass int

const (
	DeviceUnknown DeviceClass = iota
	DeviceBot
	DeviceDesktop
	DevicePhone
	DeviceTV
	DeviceTablet
	DeviceSetTop
)

// DeviceLookup resolves a user-agent string to a device classification; an
// external collaborator per spec.md §1 (out of scope: "Device-UA lookup").
type DeviceLookup interface {
	Lookup(ctx context.Context, ua string) (DeviceInfo, error)
}

// IPRiskTable reports whether an IP is a known cloud/datacenter/proxy
// address; an external collaborator per spec.md §1 (out of scope:
// "IP-risk filter").
type IPRiskTable interface {
	IsRisky(ctx context.Context, ip string) bool
}

// Dependencies bundles every collaborator the pipeline's stages need. One
// Dependencies is shared process-wide; AuctionContext is per-request.
type Dependencies struct {
	Config Config

	Demand     *catalog.DemandManager
	Publishers *catalog.PublisherManager
	Shaping    *shaping.Manager
	QPS        *qpslimiter.Limiter
	DemandHTTP *demandclient.Client
	Notify     *notify.Cache
	UserSync   *usersync.Store
	FPD        *fpd.Processor
	EIDFilter  *fpd.EIDFilter

	Devices DeviceLookup
	IPRisk  IPRiskTable

	PublisherCounters CounterSink
	DemandCounters    CounterSink
}

// CounterSink accumulates labelled counts for later batch persistence; the
// auction pipeline's finalisers are its only callers, internal/counterstore
// is its only implementation.
type CounterSink interface {
	Incr(labels map[string]string, delta int64)
}

// junkBundlePrefixes and junkBundleSubstrings implement the fixed
// non-ad-supported app blocklist from spec.md §4.2 stage 2.
var junkBundleSubstrings = []string{"netflix", "hulu", "disney"}

var junkBundlePrefixes = []string{
	"com.apple.",
	"com.google.android.gm",
	"com.android.vending",
}
