package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/sirupsen/logrus"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/models"
)

// GeoLocationService resolves node hosts to a network location, using a
// local GeoIP2 City database when one is configured and ip-api.com otherwise
type GeoLocationService struct {
	db       *geoip2.Reader
	cache    map[string]*CachedLocation
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	client   *http.Client
	resolver *net.Resolver
	logger   *logrus.Logger
	apiURL   string
}

// CachedLocation stores a resolved host detail with its lookup time
type CachedLocation struct {
	Detail   *models.HostDetail
	CachedAt time.Time
}

// NewGeoLocationService opens dbPath when set. A database that fails to open
// is logged and the service continues with the HTTP lookup only.
func NewGeoLocationService(dbPath string, logger *logrus.Logger) *GeoLocationService {
	s := &GeoLocationService{
		cache:    make(map[string]*CachedLocation),
		cacheTTL: 7 * 24 * time.Hour,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		resolver: net.DefaultResolver,
		logger:   logger,
		apiURL:   "http://ip-api.com/json",
	}

	if dbPath != "" {
		db, err := geoip2.Open(dbPath)
		if err != nil {
			logger.WithError(err).WithField("path", dbPath).Warn("Could not open GeoIP database, using ip-api lookups")
		} else {
			s.db = db
		}
	}
	return s
}

func (s *GeoLocationService) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Lookup resolves host and returns its location
func (s *GeoLocationService) Lookup(ctx context.Context, host string) (*models.HostDetail, error) {
	ip, err := s.resolveHost(ctx, host)
	if err != nil {
		return nil, err
	}

	s.cacheMu.RLock()
	if cached, ok := s.cache[ip]; ok && time.Since(cached.CachedAt) < s.cacheTTL {
		s.cacheMu.RUnlock()
		return cached.Detail, nil
	}
	s.cacheMu.RUnlock()

	detail, err := s.lookupDatabase(ip)
	if err != nil || detail == nil {
		detail, err = s.lookupAPI(ctx, ip)
		if err != nil {
			return nil, err
		}
	}

	s.cacheMu.Lock()
	s.cache[ip] = &CachedLocation{Detail: detail, CachedAt: time.Now()}
	s.cacheMu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"host":    host,
		"ip":      ip,
		"country": detail.Country,
		"city":    detail.City,
	}).Debug("Resolved host location")

	return detail, nil
}

// lookupDatabase returns nil, nil when no database is loaded
func (s *GeoLocationService) lookupDatabase(ip string) (*models.HostDetail, error) {
	if s.db == nil {
		return nil, nil
	}

	record, err := s.db.City(net.ParseIP(ip))
	if err != nil {
		return nil, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	if record.Country.IsoCode == "" {
		return nil, nil
	}

	detail := &models.HostDetail{
		IP:          ip,
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		detail.Region = record.Subdivisions[0].Names["en"]
	}
	return detail, nil
}

func (s *GeoLocationService) lookupAPI(ctx context.Context, ip string) (*models.HostDetail, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query", s.apiURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch geo data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup %s: status %d", ip, resp.StatusCode)
	}

	var geo models.GeoLocation
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !geo.IsValid() {
		return nil, fmt.Errorf("geo lookup %s failed: %s", ip, geo.Status)
	}

	detail := geo.ToHostDetail()
	if detail.IP == "" {
		detail.IP = ip
	}
	return detail, nil
}

// resolveHost returns host itself when it is an IP, otherwise its first
// IPv4 address, falling back to the first address of any family
func (s *GeoLocationService) resolveHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	addrs, err := s.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}

	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			return addr.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

// ClearCache clears the location cache
func (s *GeoLocationService) ClearCache() {
	s.cacheMu.Lock()
	s.cache = make(map[string]*CachedLocation)
	s.cacheMu.Unlock()
}

// GetCacheStats returns the number of cached and still fresh entries
func (s *GeoLocationService) GetCacheStats() (total int, valid int) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	total = len(s.cache)
	for _, cached := range s.cache {
		if time.Since(cached.CachedAt) < s.cacheTTL {
			valid++
		}
	}
	return
}
