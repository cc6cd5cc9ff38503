// Package geoip resolves source addresses to ISO country codes using a
// MaxMind country or city database.
package geoip

import (
	"fmt"
	"net"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const defaultCacheSize = 4096

// countryReader is the subset of *geoip2.Reader the locator uses.
type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Locator looks up countries and memoizes the answers per address.
type Locator struct {
	reader countryReader
	cache  *lru.Cache[string, string]
}

// Open loads the database at path.
func Open(path string) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return newLocator(reader)
}

func newLocator(reader countryReader) (*Locator, error) {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Locator{reader: reader, cache: cache}, nil
}

// Country returns the ISO code for addr, or "" for private, unparsable or
// unknown addresses. A "host:port" address is accepted.
func (l *Locator) Country(addr string) string {
	if l == nil {
		return ""
	}
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if code, ok := l.cache.Get(host); ok {
		return code
	}

	code := ""
	ip := net.ParseIP(host)
	if ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsUnspecified() {
		record, err := l.reader.Country(ip)
		if err != nil {
			zap.S().Debugf("geoip: lookup %s failed: %v", host, err)
		} else {
			code = record.Country.IsoCode
		}
	}
	l.cache.Add(host, code)
	return code
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	return l.reader.Close()
}
