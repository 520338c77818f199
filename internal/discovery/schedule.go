package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/services"
)

// HLS distribution hosts observed for the Senate floor feed. The primary host
// serves most sessions; the archive hosts cover streams mid-failover.
const (
	primaryStreamPattern = "https://www-senate-gov-media-srs.akamaized.net/hls/live/2096634/%s/%s/master.m3u8"
	backupStreamPattern  = "https://www-senate-gov-msl3archive.akamaized.net/stv/%s_1/master.m3u8"
	legacyStreamPattern  = "https://stv-f.akamaihd.net/i/%s_1@76462/master.m3u8"
)

const scheduleUserAgent = "gavel/0.1"

// scheduleDocument mirrors the floor schedule JSON feed.
type scheduleDocument struct {
	FloorProceedings []struct {
		ConvenedSessionStream string `json:"convenedSessionStream"`
	} `json:"floorProceedings"`
}

// ScheduleClient polls the floor schedule feed and resolves stream endpoints.
type ScheduleClient struct {
	scheduleURL string
	client      *http.Client
	logger      *slog.Logger
	candidates  func(committee, filename string) []string
}

// Option configures optional ScheduleClient behavior.
type Option func(*ScheduleClient)

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *ScheduleClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithStreamCandidates overrides candidate endpoint construction (used in tests).
func WithStreamCandidates(fn func(committee, filename string) []string) Option {
	return func(c *ScheduleClient) {
		if fn != nil {
			c.candidates = fn
		}
	}
}

// NewScheduleClient builds a discovery source for the configured schedule feed.
func NewScheduleClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *ScheduleClient {
	timeout := time.Duration(cfg.Discovery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &ScheduleClient{
		scheduleURL: cfg.Discovery.ScheduleURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logging.NewComponentLogger(logger, "discovery"),
		candidates:  defaultCandidates,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultCandidates(committee, filename string) []string {
	return []string{
		fmt.Sprintf(primaryStreamPattern, committee, filename),
		fmt.Sprintf(backupStreamPattern, filename),
		fmt.Sprintf(legacyStreamPattern, filename),
	}
}

// Poll implements Source. A feed without convened proceedings reports an
// inactive status with no error; network and parse failures return an error
// tagged services.ErrTransientDiscovery.
func (c *ScheduleClient) Poll(ctx context.Context) (Status, error) {
	doc, err := c.fetchSchedule(ctx)
	if err != nil {
		return Status{}, err
	}

	pageURL := ""
	for _, proceeding := range doc.FloorProceedings {
		if u := strings.TrimSpace(proceeding.ConvenedSessionStream); u != "" {
			pageURL = u
			break
		}
	}
	if pageURL == "" {
		return Status{}, nil
	}

	params, ok := parsePlayerPage(pageURL)
	if !ok {
		return Status{}, services.Wrap(services.ErrTransientDiscovery, "discovery", "parse",
			fmt.Sprintf("unusable session page URL %q", pageURL), nil)
	}

	endpoint, err := c.probeCandidates(ctx, params.Committee, params.Filename)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Active: true,
		Stream: Stream{
			VideoURL: endpoint,
			AudioURL: endpoint,
			Params:   params,
		},
	}, nil
}

func (c *ScheduleClient) fetchSchedule(ctx context.Context) (scheduleDocument, error) {
	var doc scheduleDocument

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scheduleURL, nil)
	if err != nil {
		return doc, services.Wrap(services.ErrTransientDiscovery, "discovery", "fetch schedule", "", err)
	}
	req.Header.Set("User-Agent", scheduleUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return doc, services.Wrap(services.ErrTransientDiscovery, "discovery", "fetch schedule", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return doc, services.Wrap(services.ErrTransientDiscovery, "discovery", "fetch schedule",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return doc, services.Wrap(services.ErrTransientDiscovery, "discovery", "read schedule", "", err)
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, services.Wrap(services.ErrTransientDiscovery, "discovery", "decode schedule", "", err)
	}
	return doc, nil
}

// probeCandidates HEAD-checks the candidate endpoints in order and returns the
// first reachable one.
func (c *ScheduleClient) probeCandidates(ctx context.Context, committee, filename string) (string, error) {
	candidates := c.candidates(committee, filename)
	for _, candidate := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", scheduleUserAgent)
		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Debug("stream candidate unreachable",
				logging.String("url", candidate),
				logging.Error(err),
			)
			continue
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return candidate, nil
		}
		c.logger.Debug("stream candidate rejected",
			logging.String("url", candidate),
			logging.Int("status", resp.StatusCode),
		)
	}
	return "", services.Wrap(services.ErrTransientDiscovery, "discovery", "probe stream",
		fmt.Sprintf("no reachable endpoint among %d candidates", len(candidates)), nil)
}
