package geo

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Location is the best-effort result of an IP lookup. Nil fields mean the
// dataset had no match; a lookup never fails harder than that.
type Location struct {
	Country *string
	City    *string
}

// Lookup maps an IP string to a Location. Implementations must not return
// errors or panic; any internal failure yields an empty Location.
type Lookup interface {
	Lookup(ip string) Location
}

// Client is what the write path records about the requester.
type Client struct {
	IP      string
	Country *string
	City    *string
}

type Resolver struct {
	lookup Lookup
}

func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve derives the client IP from the request and attaches geo data.
func (r *Resolver) Resolve(req *http.Request) Client {
	ip := NormalizeIP(ClientIP(req.Header, req.RemoteAddr, ""))
	loc := r.lookup.Lookup(ip)
	return Client{
		IP:      ip,
		Country: loc.Country,
		City:    loc.City,
	}
}

// ClientIP picks the best-effort client address: the first X-Forwarded-For
// entry, then the socket remote address, then the framework-provided IP.
func ClientIP(header http.Header, remoteAddr, frameworkIP string) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
			return host
		}
		return remoteAddr
	}

	return frameworkIP
}

// NormalizeIP maps the IPv6 loopback to its IPv4 form and strips the
// IPv4-mapped IPv6 prefix.
func NormalizeIP(ip string) string {
	if ip == "::1" {
		return "127.0.0.1"
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// MaxMind resolves locations from a MaxMind City database file.
type MaxMind struct {
	db     *geoip2.Reader
	logger *zap.Logger
}

func OpenMaxMind(path string, logger *zap.Logger) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	logger.Info("GeoIP database opened", zap.String("path", path))

	return &MaxMind{
		db:     db,
		logger: logger,
	}, nil
}

func (m *MaxMind) Lookup(ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}
	}

	record, err := m.db.City(parsed)
	if err != nil {
		// No data is not an error condition for the caller.
		m.logger.Debug("GeoIP lookup failed", zap.String("ip", ip), zap.Error(err))
		return Location{}
	}

	var loc Location
	if record.Country.IsoCode != "" {
		country := record.Country.IsoCode
		loc.Country = &country
	}
	if name := record.City.Names["en"]; name != "" {
		city := name
		loc.City = &city
	}
	return loc
}

func (m *MaxMind) Close() error {
	return m.db.Close()
}

// Nop is used when no GeoIP database is configured.
type Nop struct{}

func (Nop) Lookup(string) Location { return Location{} }
