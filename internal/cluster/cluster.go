// Package cluster tracks how many replicas of the exchange are currently
// live, so the qpslimiter and shaping packages can size per-endpoint
// buckets/histograms to the cluster's actual capacity rather than a single
// process's view of it.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nexusrtb/catalyst/pkg/logger"
)

// Discovery reports the current cluster size and notifies subscribers
// whenever it changes.
type Discovery interface {
	Size() int
	Subscribe(ch chan<- int)
	Run(ctx context.Context, interval time.Duration)
}

// Fixed is a Discovery whose size never changes - the single-process /
// local-dev mode.
type Fixed struct {
	size int
}

func NewFixed(size int) *Fixed {
	if size < 1 {
		size = 1
	}
	return &Fixed{size: size}
}

func (f *Fixed) Size() int                          { return f.size }
func (f *Fixed) Subscribe(ch chan<- int)             {}
func (f *Fixed) Run(ctx context.Context, _ time.Duration) {
	<-ctx.Done()
}

// K8s polls the Kubernetes API server for the number of Ready endpoints
// backing a Service, using the in-cluster service account token. There is
// no Kubernetes client library in the dependency pack this module draws
// from, so this talks to the REST API directly over the same kind of
// pooled http.Client the rest of the module already builds by hand.
type K8s struct {
	namespace   string
	serviceName string
	client      *http.Client
	tokenPath   string
	caPath      string
	apiServer   string

	mu   sync.RWMutex
	size int
	subs []chan<- int
}

// NewK8s builds a Discovery backed by the Kubernetes API, reading the
// standard in-cluster service-account mount points.
func NewK8s(namespace, serviceName string) *K8s {
	apiServer := "https://kubernetes.default.svc"
	if host := os.Getenv("KUBERNETES_SERVICE_HOST"); host != "" {
		port := os.Getenv("KUBERNETES_SERVICE_PORT")
		if port == "" {
			port = "443"
		}
		apiServer = fmt.Sprintf("https://%s:%s", host, port)
	}

	return &K8s{
		namespace:   namespace,
		serviceName: serviceName,
		client:      &http.Client{Timeout: 5 * time.Second},
		tokenPath:   "/var/run/secrets/kubernetes.io/serviceaccount/token",
		caPath:      "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt",
		apiServer:   apiServer,
		size:        1,
	}
}

func (k *K8s) Size() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.size
}

func (k *K8s) Subscribe(ch chan<- int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.subs = append(k.subs, ch)
}

type endpointSliceList struct {
	Items []struct {
		Endpoints []struct {
			Conditions struct {
				Ready *bool `json:"ready"`
			} `json:"conditions"`
		} `json:"endpoints"`
	} `json:"items"`
}

func (k *K8s) poll(ctx context.Context) (int, error) {
	token, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return 0, fmt.Errorf("read service account token: %w", err)
	}

	url := fmt.Sprintf("%s/apis/discovery.k8s.io/v1/namespaces/%s/endpointslices?labelSelector=kubernetes.io/service-name=%s",
		k.apiServer, k.namespace, k.serviceName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))

	resp, err := k.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("k8s api status %d: %s", resp.StatusCode, string(body))
	}

	var list endpointSliceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("decode endpointslices: %w", err)
	}

	ready := 0
	for _, item := range list.Items {
		for _, ep := range item.Endpoints {
			if ep.Conditions.Ready == nil || *ep.Conditions.Ready {
				ready++
			}
		}
	}
	if ready == 0 {
		ready = 1
	}
	return ready, nil
}

// Run polls the Kubernetes API at interval until ctx is canceled, updating
// the cached size and notifying subscribers on every change.
func (k *K8s) Run(ctx context.Context, interval time.Duration) {
	log := logger.Log.With().Str("component", "cluster").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		size, err := k.poll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("cluster discovery poll failed")
		} else {
			k.mu.Lock()
			changed := size != k.size
			k.size = size
			subs := append([]chan<- int(nil), k.subs...)
			k.mu.Unlock()
			if changed {
				for _, ch := range subs {
					ch <- size
				}
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
