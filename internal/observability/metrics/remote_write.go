package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const remoteWriteTimeout = 5 * time.Second

type RemoteWriteConfig struct {
	URL   string
	Token string
	// Instance labels every series so replicas do not overwrite each other.
	// Defaults to the hostname.
	Instance string
}

// RemoteWriter pushes the referral counters and gauges to a Prometheus
// remote_write endpoint. Histograms stay on /metrics.
type RemoteWriter struct {
	url      string
	token    string
	instance string
	prefix   string
	client   heimdall.Doer
	now      func() time.Time
}

// NewRemoteWriter returns nil when no endpoint is configured or the URL is unusable.
func NewRemoteWriter(cfg RemoteWriteConfig, log *zap.Logger) *RemoteWriter {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		log.Warn("metrics remote write disabled", zap.Error(err))
		return nil
	}
	instance := strings.TrimSpace(cfg.Instance)
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return &RemoteWriter{
		url:      endpoint,
		token:    strings.TrimSpace(cfg.Token),
		instance: instance,
		prefix:   "referral_",
		client:   httpclient.NewClient(httpclient.WithHTTPTimeout(remoteWriteTimeout)),
		now:      time.Now,
	}
}

// Push gathers from g and writes one sample per series. It returns the number
// of series sent.
func (w *RemoteWriter) Push(ctx context.Context, g prometheus.Gatherer) (int, error) {
	if w == nil {
		return 0, nil
	}
	families, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather: %w", err)
	}
	series := w.series(families, w.now().UnixMilli())
	if len(series) == 0 {
		return 0, nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("remote write returned %s", resp.Status)
	}
	return len(series), nil
}

func (w *RemoteWriter) series(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), w.prefix) {
			continue
		}
		for _, m := range family.GetMetric() {
			var value float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			default:
				continue
			}

			labels := []prompb.Label{
				{Name: "__name__", Value: family.GetName()},
				{Name: "instance", Value: w.instance},
			}
			for _, pair := range m.GetLabel() {
				labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
			}
			// remote_write requires labels sorted by name
			sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

			out = append(out, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
			})
		}
	}
	return out
}
