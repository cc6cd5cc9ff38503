package geoip

import (
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	codes  map[string]string
	lookup int
	closed bool
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.lookup++
	code, ok := f.codes[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	var c geoip2.Country
	c.Country.IsoCode = code
	return &c, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestLocatorCountry(t *testing.T) {
	reader := &fakeReader{codes: map[string]string{"203.0.113.9": "DE", "2001:db8::1": "FR"}}
	l, err := newLocator(reader)
	require.NoError(t, err)

	assert.Equal(t, "DE", l.Country("203.0.113.9"))
	assert.Equal(t, "DE", l.Country("203.0.113.9:443"))
	assert.Equal(t, "FR", l.Country("2001:db8::1"))
	assert.Equal(t, "", l.Country("198.51.100.1"))
	assert.Equal(t, "", l.Country("10.0.0.1"))
	assert.Equal(t, "", l.Country("127.0.0.1"))
	assert.Equal(t, "", l.Country("not-an-ip"))

	// Repeated lookups hit the cache.
	assert.Equal(t, 3, reader.lookup)

	require.NoError(t, l.Close())
	assert.True(t, reader.closed)
}

func TestNilLocator(t *testing.T) {
	var l *Locator
	assert.Equal(t, "", l.Country("203.0.113.9"))
	assert.NoError(t, l.Close())
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}
