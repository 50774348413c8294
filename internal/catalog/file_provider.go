package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nexusrtb/catalyst/pkg/logger"
	"gopkg.in/yaml.v3"
)

// fileBidder/filePublisher are the on-disk yaml shapes; kept separate from
// the domain types so the file format can evolve without touching callers.
type fileShaping struct {
	Mode            string   `yaml:"mode"` // "none" | "tree"
	ControlPercent  float64  `yaml:"control_percent"`
	Metric          string   `yaml:"metric"`
	Features        []string `yaml:"features"`
	MinTargetMetric float64  `yaml:"min_target_metric"`
}

type fileTargeting struct {
	Geos             []string `yaml:"geos"`
	Channels         []string `yaml:"channels"`
	DeviceCategories []string `yaml:"device_categories"`
	Formats          []string `yaml:"formats"`
	PublisherAllow   []string `yaml:"publisher_allow"`
}

type fileBidder struct {
	Code        string        `yaml:"code"`
	Name        string        `yaml:"name"`
	Endpoint    string        `yaml:"endpoint"`
	TimeoutMs   int           `yaml:"timeout_ms"`
	Protocol    string        `yaml:"protocol"`
	Transport   string        `yaml:"transport"`
	Gzip        bool          `yaml:"gzip"`
	TargetQPS   float64       `yaml:"target_qps"`
	Targeting   fileTargeting `yaml:"targeting"`
	Shaping     fileShaping   `yaml:"shaping"`
	MultiImp    bool          `yaml:"multi_imp"`
	Banner      bool          `yaml:"banner"`
	Video       bool          `yaml:"video"`
	Native      bool          `yaml:"native"`
	Audio       bool          `yaml:"audio"`
	Enabled     bool          `yaml:"enabled"`
}

type filePublisher struct {
	PublisherID    string                 `yaml:"publisher_id"`
	Name           string                 `yaml:"name"`
	AllowedDomains string                 `yaml:"allowed_domains"`
	BidMultiplier  float64                `yaml:"bid_multiplier"`
	BidderParams   map[string]interface{} `yaml:"bidder_params"`
	Enabled        bool                   `yaml:"enabled"`
}

type bidderFile struct {
	Bidders []fileBidder `yaml:"bidders"`
}

type publisherFile struct {
	Publishers []filePublisher `yaml:"publishers"`
}

// FileProvider is a fallback catalogue source for local/dev environments or
// for environments without Postgres: a single yaml file each for bidders
// and publishers, re-read every poll interval.
type FileProvider struct {
	BiddersPath    string
	PublishersPath string
}

func NewFileProvider(biddersPath, publishersPath string) *FileProvider {
	return &FileProvider{BiddersPath: biddersPath, PublishersPath: publishersPath}
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) LoadBidders(ctx context.Context) ([]Bidder, error) {
	raw, err := os.ReadFile(f.BiddersPath)
	if err != nil {
		return nil, fmt.Errorf("read bidders file: %w", err)
	}
	var doc bidderFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse bidders file: %w", err)
	}
	now := time.Now()
	out := make([]Bidder, 0, len(doc.Bidders))
	for _, b := range doc.Bidders {
		mode := ShapingNone
		if b.Shaping.Mode == "tree" {
			mode = ShapingTree
		}
		out = append(out, Bidder{
			Code:            b.Code,
			Name:            b.Name,
			MultiImpSupport: b.MultiImp,
			Endpoints: []Endpoint{{
				BidderCode: b.Code,
				URL:        b.Endpoint,
				TimeoutMs:  b.TimeoutMs,
				Protocol:   orDefault(b.Protocol, "json"),
				Transport:  orDefault(b.Transport, "h1"),
				Gzip:       b.Gzip,
				TargetQPS:  b.TargetQPS,
				Targeting: Targeting{
					Geos:              b.Targeting.Geos,
					Channels:          b.Targeting.Channels,
					DeviceCategories:  b.Targeting.DeviceCategories,
					Formats:           b.Targeting.Formats,
					PublisherAllowSet: b.Targeting.PublisherAllow,
				},
				Shaping: ShapingConfig{
					Mode:            mode,
					ControlPercent:  b.Shaping.ControlPercent,
					Metric:          b.Shaping.Metric,
					Features:        b.Shaping.Features,
					MinTargetMetric: b.Shaping.MinTargetMetric,
				},
				Enabled: b.Enabled,
			}},
			SupportsBanner: b.Banner,
			SupportsVideo:  b.Video,
			SupportsNative: b.Native,
			SupportsAudio:  b.Audio,
			Enabled:        b.Enabled,
			Status:         statusOf(b.Enabled),
			UpdatedAt:      now,
		})
	}
	return out, nil
}

func (f *FileProvider) WatchBidders(ctx context.Context, interval time.Duration, changes chan<- BidderEvent) error {
	return watchLoop(ctx, interval, f.Name(), func() (map[string]Bidder, error) {
		snap, err := f.LoadBidders(ctx)
		if err != nil {
			return nil, err
		}
		m := map[string]Bidder{}
		for _, b := range snap {
			m[b.Code] = b
		}
		return m, nil
	}, diffBidders, changes)
}

func (f *FileProvider) LoadPublishers(ctx context.Context) ([]Publisher, error) {
	raw, err := os.ReadFile(f.PublishersPath)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	var doc publisherFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse publishers file: %w", err)
	}
	now := time.Now()
	out := make([]Publisher, 0, len(doc.Publishers))
	for _, p := range doc.Publishers {
		mult := p.BidMultiplier
		if mult == 0 {
			mult = 1.0
		}
		out = append(out, Publisher{
			PublisherID:    p.PublisherID,
			Name:           p.Name,
			AllowedDomains: p.AllowedDomains,
			BidderParams:   p.BidderParams,
			BidMultiplier:  mult,
			Status:         statusOf(p.Enabled),
			UpdatedAt:      now,
		})
	}
	return out, nil
}

func (f *FileProvider) WatchPublishers(ctx context.Context, interval time.Duration, changes chan<- PublisherEvent) error {
	return watchLoopPub(ctx, interval, f.Name(), func() (map[string]Publisher, error) {
		snap, err := f.LoadPublishers(ctx)
		if err != nil {
			return nil, err
		}
		m := map[string]Publisher{}
		for _, p := range snap {
			m[p.PublisherID] = p
		}
		return m, nil
	}, diffPublishers, changes)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func statusOf(enabled bool) string {
	if enabled {
		return "active"
	}
	return "disabled"
}

func watchLoop(ctx context.Context, interval time.Duration, providerName string, load func() (map[string]Bidder, error), diff func(prev, next map[string]Bidder) []BidderEvent, changes chan<- BidderEvent) error {
	prev := map[string]Bidder{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logger.Log.With().Str("provider", providerName).Logger()

	for {
		next, err := load()
		if err != nil {
			log.Warn().Err(err).Msg("bidder poll failed")
		} else {
			for _, ev := range diff(prev, next) {
				select {
				case changes <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			prev = next
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func watchLoopPub(ctx context.Context, interval time.Duration, providerName string, load func() (map[string]Publisher, error), diff func(prev, next map[string]Publisher) []PublisherEvent, changes chan<- PublisherEvent) error {
	prev := map[string]Publisher{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logger.Log.With().Str("provider", providerName).Logger()

	for {
		next, err := load()
		if err != nil {
			log.Warn().Err(err).Msg("publisher poll failed")
		} else {
			for _, ev := range diff(prev, next) {
				select {
				case changes <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			prev = next
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
