package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

const testSeed = "57F7DA205008026C776CB6AED843393F04CD458E0AA2D9F1D5F31A402072B2D6"

var errRefused = errors.New("connection refused")

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func announce(host, publicKey string) models.NodePeer {
	return models.NodePeer{
		Version:                   16777990,
		PublicKey:                 publicKey,
		NetworkGenerationHashSeed: testSeed,
		Roles:                     3,
		Port:                      7900,
		NetworkIdentifier:         152,
		Host:                      host,
		FriendlyName:              host,
	}
}

func certifiedInfo(peer models.NodePeer, nodePublicKey string, expiry time.Time) *models.NodeInfo {
	return &models.NodeInfo{
		NodePeer:                  peer,
		NodePublicKey:             nodePublicKey,
		CertificateExpirationDate: &expiry,
	}
}

// fakeNodeRepo is an in-memory NodeRepository
type fakeNodeRepo struct {
	mu               sync.Mutex
	nodes            map[string]*models.Node
	conflictOnCreate bool
	creates          int
}

func newFakeNodeRepo(nodes ...*models.Node) *fakeNodeRepo {
	r := &fakeNodeRepo{nodes: make(map[string]*models.Node)}
	for _, n := range nodes {
		clone := *n
		r.nodes[n.Identity().Key()] = &clone
	}
	return r
}

func (r *fakeNodeRepo) get(id models.NodeIdentity) *models.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return nil
	}
	clone := *n
	return &clone
}

func (r *fakeNodeRepo) FindOne(_ context.Context, id models.NodeIdentity) (*models.Node, error) {
	return r.get(id), nil
}

func (r *fakeNodeRepo) Create(_ context.Context, node *models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	key := node.Identity().Key()
	if _, ok := r.nodes[key]; ok || r.conflictOnCreate {
		return apperrors.Wrap(apperrors.ErrConflict, key)
	}
	clone := *node
	r.nodes[key] = &clone
	return nil
}

func (r *fakeNodeRepo) update(id models.NodeIdentity, fn func(*models.Node)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, id.String())
	}
	fn(n)
	return nil
}

func (r *fakeNodeRepo) UpdatePeer(_ context.Context, id models.NodeIdentity, peer models.PeerStatus) error {
	return r.update(id, func(n *models.Node) { n.Peer = peer })
}

func (r *fakeNodeRepo) UpdateAPI(_ context.Context, id models.NodeIdentity, api models.APIStatus) error {
	return r.update(id, func(n *models.Node) { n.API = api })
}

func (r *fakeNodeRepo) UpdateVoting(_ context.Context, id models.NodeIdentity, voting models.VotingStatus) error {
	return r.update(id, func(n *models.Node) { n.Voting = voting })
}

func (r *fakeNodeRepo) UpdateHostDetail(_ context.Context, id models.NodeIdentity, detail *models.HostDetail) error {
	return r.update(id, func(n *models.Node) { n.HostDetail = detail })
}

func (r *fakeNodeRepo) sorted() []*models.Node {
	keys := make([]string, 0, len(r.nodes))
	for key := range r.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]*models.Node, 0, len(keys))
	for _, key := range keys {
		clone := *r.nodes[key]
		nodes = append(nodes, &clone)
	}
	return nodes
}

func checkedAt(n *models.Node, aspect models.Aspect) *time.Time {
	switch aspect {
	case models.AspectAPI:
		return n.API.LastStatusCheck
	case models.AspectVoting:
		return n.Voting.LastStatusCheck
	default:
		return n.Peer.LastStatusCheck
	}
}

func (r *fakeNodeRepo) FindStale(_ context.Context, aspect models.Aspect, limit int) ([]*models.Node, error) {
	r.mu.Lock()
	nodes := r.sorted()
	r.mu.Unlock()

	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := checkedAt(nodes[i], aspect), checkedAt(nodes[j], aspect)
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

func (r *fakeNodeRepo) FindRandomAPIAvailable(_ context.Context) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.sorted() {
		if n.API.IsAvailable {
			return n, nil
		}
	}
	return nil, nil
}

func matches(n *models.Node, f models.NodeFilter) bool {
	if f.HTTPSEnabled != nil && n.API.IsHTTPSEnabled != *f.HTTPSEnabled {
		return false
	}
	if f.PeerAvailable != nil && n.Peer.IsAvailable != *f.PeerAvailable {
		return false
	}
	if f.APIAvailable != nil && n.API.IsAvailable != *f.APIAvailable {
		return false
	}
	if f.VotingEnabled != nil && n.Voting.IsVotingEnabled != *f.VotingEnabled {
		return false
	}
	if f.MinTxSearchCountPerPage != nil && n.API.TxSearchCountPerPage < *f.MinTxSearchCountPerPage {
		return false
	}
	return true
}

func (r *fakeNodeRepo) Find(_ context.Context, filter models.NodeFilter, limit int) ([]*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found []*models.Node
	for _, n := range r.sorted() {
		if matches(n, filter) {
			found = append(found, n)
		}
	}
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (r *fakeNodeRepo) Count(ctx context.Context, filter models.NodeFilter) (int64, error) {
	found, err := r.Find(ctx, filter, 0)
	return int64(len(found)), err
}

func (r *fakeNodeRepo) Ping(context.Context) error { return nil }

// fakeSettings is an in-memory SettingsRepository
type fakeSettings struct {
	mu       sync.Mutex
	values   map[string]string
	settings *models.NetworkSettings
}

func newFakeSettings(settings *models.NetworkSettings) *fakeSettings {
	return &fakeSettings{values: make(map[string]string), settings: settings}
}

func (s *fakeSettings) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", apperrors.Wrap(apperrors.ErrNotFound, key)
}

func (s *fakeSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeSettings) GetNetworkSettings(context.Context) (*models.NetworkSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, apperrors.Wrap(apperrors.ErrConfiguration, "network settings")
	}
	return s.settings, nil
}

func (s *fakeSettings) SaveNetworkSettings(_ context.Context, settings *models.NetworkSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func testNetworkSettings() *models.NetworkSettings {
	return &models.NetworkSettings{
		NetworkGenerationHashSeed: testSeed,
		CurrencyMosaicID:          "6BED913FA20223F8",
		MinVoterBalance:           3000000000000,
	}
}

// socketNode is what a fake node answers over the peer socket
type socketNode struct {
	info     *models.NodeInfo
	peers    []models.NodePeer
	chain    *models.ChainInfo
	unlocked []string
}

type fakeSocket struct {
	mu    sync.Mutex
	nodes map[string]*socketNode
	calls map[string]int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{nodes: make(map[string]*socketNode), calls: make(map[string]int)}
}

func (f *fakeSocket) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func (f *fakeSocket) node(host string, port int) (*socketNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[host]++
	n, ok := f.nodes[host]
	if !ok {
		return nil, apperrors.Transport(errRefused, "dial %s:%d", host, port)
	}
	return n, nil
}

func (f *fakeSocket) GetNodeInfo(_ context.Context, host string, port int) (*models.NodeInfo, error) {
	n, err := f.node(host, port)
	if err != nil {
		return nil, err
	}
	if n.info == nil {
		return nil, apperrors.Transport(errRefused, "node info %s", host)
	}
	info := *n.info
	return &info, nil
}

func (f *fakeSocket) GetNodePeers(_ context.Context, host string, port int) ([]models.NodePeer, error) {
	n, err := f.node(host, port)
	if err != nil {
		return nil, err
	}
	return n.peers, nil
}

func (f *fakeSocket) GetChainInfo(_ context.Context, host string, port int) (*models.ChainInfo, error) {
	n, err := f.node(host, port)
	if err != nil {
		return nil, err
	}
	if n.chain == nil {
		return nil, apperrors.Transport(errRefused, "chain info %s", host)
	}
	return n.chain, nil
}

func (f *fakeSocket) GetUnlockedAccounts(_ context.Context, host string, port int) ([]string, error) {
	n, err := f.node(host, port)
	if err != nil {
		return nil, err
	}
	return n.unlocked, nil
}

// restNode is what a fake node answers on its REST gateway
type restNode struct {
	https    bool
	http     bool
	info     *models.NodeInfo
	peers    []models.NodePeer
	chain    *models.ChainInfo
	unlocked []string
	props    *models.NetworkProperties
	accounts map[string]*models.AccountInfo
	txCount  int
}

type fakeRest struct {
	mu    sync.Mutex
	nodes map[string]*restNode
	calls []string
}

func newFakeRest() *fakeRest {
	return &fakeRest{nodes: make(map[string]*restNode)}
}

func (f *fakeRest) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRest) node(host string, https bool, path string) (*restNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s%s", scheme(https), host, path))
	n, ok := f.nodes[host]
	if !ok || (https && !n.https) || (!https && !n.http) {
		return nil, apperrors.Transport(errRefused, "GET %s%s", host, path)
	}
	return n, nil
}

func (f *fakeRest) IsHTTPSEnabled(_ context.Context, host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[host]
	return ok && n.https
}

func (f *fakeRest) Port(https bool) int {
	if https {
		return 3001
	}
	return 3000
}

func (f *fakeRest) BaseURL(host string, https bool) string {
	return fmt.Sprintf("%s://%s:%d", scheme(https), host, f.Port(https))
}

func (f *fakeRest) GetNodeInfo(_ context.Context, host string, https bool) (*models.NodeInfo, error) {
	n, err := f.node(host, https, "/node/info")
	if err != nil {
		return nil, err
	}
	if n.info == nil {
		return nil, apperrors.Transport(errRefused, "node info %s", host)
	}
	info := *n.info
	info.Host = host
	info.IsHTTPSEnabled = https
	return &info, nil
}

func (f *fakeRest) TryHTTPSNodeInfo(ctx context.Context, host string) (*models.NodeInfo, error) {
	if info, err := f.GetNodeInfo(ctx, host, true); err == nil {
		return info, nil
	}
	return f.GetNodeInfo(ctx, host, false)
}

func (f *fakeRest) GetNodePeers(_ context.Context, host string, https bool) ([]models.NodePeer, error) {
	n, err := f.node(host, https, "/node/peers")
	if err != nil {
		return nil, err
	}
	return n.peers, nil
}

func (f *fakeRest) GetChainInfo(_ context.Context, host string, https bool) (*models.ChainInfo, error) {
	n, err := f.node(host, https, "/chain/info")
	if err != nil {
		return nil, err
	}
	if n.chain == nil {
		return nil, apperrors.Transport(errRefused, "chain info %s", host)
	}
	return n.chain, nil
}

func (f *fakeRest) GetUnlockedAccounts(_ context.Context, host string, https bool) ([]string, error) {
	n, err := f.node(host, https, "/node/unlockedaccount")
	if err != nil {
		return nil, err
	}
	return n.unlocked, nil
}

func (f *fakeRest) GetNetworkProperties(_ context.Context, host string, https bool) (*models.NetworkProperties, error) {
	n, err := f.node(host, https, "/network/properties")
	if err != nil {
		return nil, err
	}
	if n.props == nil {
		return nil, apperrors.Transport(errRefused, "network properties %s", host)
	}
	return n.props, nil
}

func (f *fakeRest) TryHTTPSNetworkProperties(ctx context.Context, host string) (*models.NetworkProperties, error) {
	if props, err := f.GetNetworkProperties(ctx, host, true); err == nil {
		return props, nil
	}
	return f.GetNetworkProperties(ctx, host, false)
}

func (f *fakeRest) GetAccountInfo(_ context.Context, host string, https bool, publicKey string) (*models.AccountInfo, error) {
	n, err := f.node(host, https, "/accounts/"+publicKey)
	if err != nil {
		return nil, err
	}
	account, ok := n.accounts[publicKey]
	if !ok {
		return nil, apperrors.Transport(errRefused, "account %s", publicKey)
	}
	return account, nil
}

func (f *fakeRest) GetTxSearchCountPerPage(_ context.Context, host string, https bool) (int, error) {
	n, err := f.node(host, https, "/transactions/confirmed")
	if err != nil {
		return 0, err
	}
	return n.txCount, nil
}

type fakeWebSocket struct {
	available map[string]bool
}

func (f *fakeWebSocket) URL(host string, secure bool) string {
	if secure {
		return fmt.Sprintf("wss://%s:3001/ws", host)
	}
	return fmt.Sprintf("ws://%s:3000/ws", host)
}

func (f *fakeWebSocket) IsAvailable(_ context.Context, url string) bool {
	return f.available[url]
}

type fakeLocator struct {
	detail *models.HostDetail
	err    error
	calls  int
}

func (f *fakeLocator) Lookup(context.Context, string) (*models.HostDetail, error) {
	f.calls++
	return f.detail, f.err
}

// testEngine wires the services over fakes
type testEngine struct {
	nodes    *fakeNodeRepo
	settings *fakeSettings
	socket   *fakeSocket
	rest     *fakeRest
	resolver *TransportResolver
	crawler  *Crawler
	updater  *RegistryUpdater
	peers    *PeerMonitor
}

func newTestEngine(settings *models.NetworkSettings, nodes ...*models.Node) *testEngine {
	logger := newTestLogger()
	m := metrics.NewMetrics()

	e := &testEngine{
		nodes:    newFakeNodeRepo(nodes...),
		settings: newFakeSettings(settings),
		socket:   newFakeSocket(),
		rest:     newFakeRest(),
	}
	e.resolver = NewTransportResolver(e.socket, e.rest, e.rest, m, logger)
	e.crawler = NewCrawler(e.resolver, 2, 7900, m, logger)
	e.updater = NewRegistryUpdater(e.nodes, nil, m, logger)
	e.peers = NewPeerMonitor(e.nodes, e.settings, e.crawler, e.updater, 100, m, logger)
	return e
}
