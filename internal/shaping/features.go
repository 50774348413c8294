package shaping

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// FeatureKind names one dimension of the LogicTree's feature vector.
type FeatureKind string

const (
	FeaturePubId        FeatureKind = "pubid"
	FeatureGeo          FeatureKind = "geo"
	FeatureDomain       FeatureKind = "domain"
	FeatureZoneId       FeatureKind = "zoneid"
	FeatureDeviceOs     FeatureKind = "deviceos"
	FeatureDeviceConType FeatureKind = "deviceconntype"
	FeatureDeviceType   FeatureKind = "devicetype"
	FeatureAdSizeFormat FeatureKind = "adsizeformat"
	FeatureUserMatched  FeatureKind = "usermatched"
)

// Vector is an ordered list of feature labels, one per requested kind (the
// kinds themselves are not stored); the LogicTree keys
// handlers by successive prefixes of this vector.
type Vector []string

// Extract derives one feature vector per requested kind, in order, from
// the request and publisher id. Multi-label features (AdSizeFormat across
// multiple imps) are joined with "+" so the vector stays one label wide.
func Extract(req *openrtb.BidRequest, pubid string, kinds []string) Vector {
	out := make(Vector, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, extractOne(req, pubid, FeatureKind(k)))
	}
	return out
}

func extractOne(req *openrtb.BidRequest, pubid string, kind FeatureKind) string {
	switch kind {
	case FeaturePubId:
		return pubid
	case FeatureGeo:
		return strings.ToUpper(deviceCountry(req))
	case FeatureDomain:
		return domainOf(req)
	case FeatureZoneId:
		return zoneIDs(req)
	case FeatureDeviceOs:
		if req.Device != nil {
			return req.Device.OS
		}
		return ""
	case FeatureDeviceConType:
		if req.Device != nil {
			return strconv.Itoa(req.Device.ConnectionType)
		}
		return ""
	case FeatureDeviceType:
		if req.Device != nil {
			return strconv.Itoa(req.Device.DeviceType)
		}
		return ""
	case FeatureAdSizeFormat:
		return adSizeFormats(req)
	case FeatureUserMatched:
		if userMatched(req) {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func deviceCountry(req *openrtb.BidRequest) string {
	if req.Device != nil && req.Device.Geo != nil {
		return req.Device.Geo.Country
	}
	return ""
}

func domainOf(req *openrtb.BidRequest) string {
	if req.Site != nil {
		return req.Site.Domain
	}
	if req.App != nil {
		return req.App.Bundle
	}
	if req.DOOH != nil {
		return req.DOOH.Domain
	}
	return ""
}

func zoneIDs(req *openrtb.BidRequest) string {
	seen := map[string]bool{}
	var ids []string
	for _, imp := range req.Imp {
		if imp.TagID == "" || seen[imp.TagID] {
			continue
		}
		seen[imp.TagID] = true
		ids = append(ids, imp.TagID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// adSizeFormats produces a per-imp size/format label (e.g. "b_300x250",
// "v_640x480", "n", "a") joined across every imp on the request.
func adSizeFormats(req *openrtb.BidRequest) string {
	var labels []string
	for _, imp := range req.Imp {
		labels = append(labels, impFormatLabel(imp))
	}
	return strings.Join(labels, "+")
}

func impFormatLabel(imp openrtb.Imp) string {
	switch {
	case imp.Banner != nil:
		w, h := bannerSize(imp.Banner)
		return "b_" + strconv.Itoa(w) + "x" + strconv.Itoa(h)
	case imp.Video != nil:
		return "v_" + strconv.Itoa(imp.Video.W) + "x" + strconv.Itoa(imp.Video.H)
	case imp.Native != nil:
		return "n"
	case imp.Audio != nil:
		return "a"
	default:
		return "u"
	}
}

func bannerSize(b *openrtb.Banner) (int, int) {
	if b.W > 0 && b.H > 0 {
		return b.W, b.H
	}
	if len(b.Format) > 0 {
		return b.Format[0].W, b.Format[0].H
	}
	return 0, 0
}

// userMatched mirrors the spec's channel-specific definition: for site
// traffic a non-empty buyeruid counts as matched, for app traffic a
// non-zero IFA counts, otherwise (dooh) traffic is always considered matched.
func userMatched(req *openrtb.BidRequest) bool {
	if req.Site != nil {
		return req.User != nil && req.User.BuyerUID != ""
	}
	if req.App != nil {
		return req.Device != nil && req.Device.IFA != "" && req.Device.IFA != "00000000-0000-0000-0000-000000000000"
	}
	return true
}

// Key renders a feature vector into the compact, URL-safe serialised form
// attached to the billing DataUrl as the shaping_key parameter.
func (v Vector) Key() string {
	return strings.Join([]string(v), "|")
}

// ParseKey is the inverse of Key.
func ParseKey(s string) Vector {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
