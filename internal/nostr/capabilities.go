package nostr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/gjson"

	"github.com/sandwichfarm/quartz/internal/ops"
	"github.com/sandwichfarm/quartz/internal/relay"
)

// capabilityTTL is how long a relay information document is trusted
const capabilityTTL = 7 * 24 * time.Hour

// RelayInfo is the part of a NIP-11 relay information document we use
type RelayInfo struct {
	URL           string
	Name          string
	Software      string
	Version       string
	SupportedNIPs []int
	CheckedAt     time.Time
}

// Supports reports whether the relay advertises a NIP
func (i RelayInfo) Supports(nip int) bool {
	return slices.Contains(i.SupportedNIPs, nip)
}

// FeedTypes suggests the feeds a relay can serve. Search needs NIP-50.
func (i RelayInfo) FeedTypes() []relay.FeedType {
	out := []relay.FeedType{relay.FeedFollows, relay.FeedPublicChats, relay.FeedPrivateDMs, relay.FeedGlobal}
	if i.Supports(50) {
		out = append(out, relay.FeedSearch)
	}
	return out
}

// Prober fetches and caches relay information documents
type Prober struct {
	http   *http.Client
	cache  *xsync.MapOf[string, RelayInfo]
	now    func() time.Time
	logger *ops.Logger
}

// NewProber creates a prober with the given request timeout
func NewProber(timeout time.Duration, logger *ops.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = ops.Default()
	}
	return &Prober{
		http:   &http.Client{Timeout: timeout},
		cache:  xsync.NewMapOf[string, RelayInfo](),
		now:    time.Now,
		logger: logger.WithComponent("nip11"),
	}
}

// Probe returns the relay's information document, from cache while fresh
func (p *Prober) Probe(ctx context.Context, url string) (RelayInfo, error) {
	url = relay.NormalizeURL(url)
	if info, ok := p.cache.Load(url); ok && p.now().Before(info.CheckedAt.Add(capabilityTTL)) {
		return info, nil
	}

	info, err := p.fetch(ctx, url)
	if err != nil {
		return RelayInfo{}, err
	}
	info.CheckedAt = p.now()
	p.cache.Store(url, info)
	p.logger.Debug("relay probed", "relay", url, "software", info.Software, "nips", len(info.SupportedNIPs))
	return info, nil
}

// SupportsSearch reports whether a relay advertises NIP-50. Unreachable
// relays are reported as not supporting it.
func (p *Prober) SupportsSearch(ctx context.Context, url string) bool {
	info, err := p.Probe(ctx, url)
	return err == nil && info.Supports(50)
}

func (p *Prober) fetch(ctx context.Context, wsURL string) (RelayInfo, error) {
	// Convert ws:// or wss:// to http:// or https://
	httpURL := strings.Replace(wsURL, "ws://", "http://", 1)
	httpURL = strings.Replace(httpURL, "wss://", "https://", 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpURL, nil)
	if err != nil {
		return RelayInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/nostr+json")

	resp, err := p.http.Do(req)
	if err != nil {
		return RelayInfo{}, fmt.Errorf("failed to fetch NIP-11 info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RelayInfo{}, fmt.Errorf("NIP-11 request failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RelayInfo{}, fmt.Errorf("failed to read NIP-11 response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return RelayInfo{}, fmt.Errorf("failed to parse NIP-11 response")
	}

	doc := gjson.ParseBytes(body)
	info := RelayInfo{
		URL:      wsURL,
		Name:     doc.Get("name").String(),
		Software: doc.Get("software").String(),
		Version:  doc.Get("version").String(),
	}
	// some relays publish NIP numbers as strings
	for _, nip := range doc.Get("supported_nips").Array() {
		if n := nip.Int(); n > 0 {
			info.SupportedNIPs = append(info.SupportedNIPs, int(n))
		}
	}
	return info, nil
}
