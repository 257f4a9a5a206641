package symbol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
)

const (
	DefaultHTTPPort  = 3000
	DefaultHTTPSPort = 3001

	txSearchPageSize = 100
	maxResponseBytes = 8 * 1024 * 1024
)

// RestClient queries a node's REST gateway
type RestClient struct {
	client    *http.Client
	httpPort  int
	httpsPort int
}

// RestOption customizes a RestClient
type RestOption func(*RestClient)

// WithPorts overrides the gateway ports (3000 http, 3001 https)
func WithPorts(httpPort, httpsPort int) RestOption {
	return func(c *RestClient) {
		c.httpPort = httpPort
		c.httpsPort = httpsPort
	}
}

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(client *http.Client) RestOption {
	return func(c *RestClient) {
		c.client = client
	}
}

func NewRestClient(timeout time.Duration, opts ...RestOption) *RestClient {
	c := &RestClient{
		client:    &http.Client{Timeout: timeout},
		httpPort:  DefaultHTTPPort,
		httpsPort: DefaultHTTPSPort,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Port returns the gateway port for the scheme
func (c *RestClient) Port(https bool) int {
	if https {
		return c.httpsPort
	}
	return c.httpPort
}

// BaseURL returns the gateway root for host
func (c *RestClient) BaseURL(host string, https bool) string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(c.Port(https))))
}

// IsHTTPSEnabled reports whether the HTTPS gateway answers /node/health
func (c *RestClient) IsHTTPSEnabled(ctx context.Context, host string) bool {
	var health json.RawMessage
	return c.get(ctx, host, true, "/node/health", &health) == nil
}

func (c *RestClient) GetNodeInfo(ctx context.Context, host string, https bool) (*models.NodeInfo, error) {
	var info models.NodeInfo
	if err := c.get(ctx, host, https, "/node/info", &info); err != nil {
		return nil, err
	}
	normalizePeer(&info.NodePeer)
	// Some gateways report an empty or internal host
	info.Host = host
	info.IsHTTPSEnabled = https
	return &info, nil
}

func (c *RestClient) TryHTTPSNodeInfo(ctx context.Context, host string) (*models.NodeInfo, error) {
	return tryHTTPS(ctx, host, c.GetNodeInfo)
}

func (c *RestClient) GetNodePeers(ctx context.Context, host string, https bool) ([]models.NodePeer, error) {
	var peers []models.NodePeer
	if err := c.get(ctx, host, https, "/node/peers", &peers); err != nil {
		return nil, err
	}
	for i := range peers {
		normalizePeer(&peers[i])
	}
	return peers, nil
}

func (c *RestClient) GetChainInfo(ctx context.Context, host string, https bool) (*models.ChainInfo, error) {
	var info models.ChainInfo
	if err := c.get(ctx, host, https, "/chain/info", &info); err != nil {
		return nil, err
	}
	info.LatestFinalizedBlock.Hash = strings.ToUpper(info.LatestFinalizedBlock.Hash)
	return &info, nil
}

func (c *RestClient) GetUnlockedAccounts(ctx context.Context, host string, https bool) ([]string, error) {
	var unlocked models.UnlockedAccounts
	if err := c.get(ctx, host, https, "/node/unlockedaccount", &unlocked); err != nil {
		return nil, err
	}
	if unlocked.UnlockedAccount == nil {
		return []string{}, nil
	}
	return unlocked.UnlockedAccount, nil
}

func (c *RestClient) GetNetworkProperties(ctx context.Context, host string, https bool) (*models.NetworkProperties, error) {
	var props models.NetworkProperties
	if err := c.get(ctx, host, https, "/network/properties", &props); err != nil {
		return nil, err
	}
	return &props, nil
}

func (c *RestClient) TryHTTPSNetworkProperties(ctx context.Context, host string) (*models.NetworkProperties, error) {
	return tryHTTPS(ctx, host, c.GetNetworkProperties)
}

// GetAccountInfo fetches /accounts/{publicKey}
func (c *RestClient) GetAccountInfo(ctx context.Context, host string, https bool, publicKey string) (*models.AccountInfo, error) {
	var info models.AccountInfo
	if err := c.get(ctx, host, https, "/accounts/"+publicKey, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetTxSearchCountPerPage asks for a full page of confirmed transactions and
// returns how many the gateway actually served.
func (c *RestClient) GetTxSearchCountPerPage(ctx context.Context, host string, https bool) (int, error) {
	var page struct {
		Data []json.RawMessage `json:"data"`
	}
	path := fmt.Sprintf("/transactions/confirmed?pageSize=%d", txSearchPageSize)
	if err := c.get(ctx, host, https, path, &page); err != nil {
		return 0, err
	}
	return len(page.Data), nil
}

func (c *RestClient) get(ctx context.Context, host string, https bool, path string, out interface{}) error {
	url := c.BaseURL(host, https) + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Transport(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: %w: status %d", url, apperrors.ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return apperrors.Transport(err, "decode %s", url)
	}
	return nil
}

// tryHTTPS calls fn over HTTPS and retries exactly once over plain HTTP
func tryHTTPS[T any](ctx context.Context, host string, fn func(context.Context, string, bool) (T, error)) (T, error) {
	result, err := fn(ctx, host, true)
	if err == nil {
		return result, nil
	}
	result, httpErr := fn(ctx, host, false)
	if httpErr != nil {
		return result, apperrors.Join(err, httpErr)
	}
	return result, nil
}

func normalizePeer(p *models.NodePeer) {
	p.PublicKey = strings.ToUpper(p.PublicKey)
	p.NetworkGenerationHashSeed = strings.ToUpper(p.NetworkGenerationHashSeed)
}
