package discovery

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortFromAddr(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":8080", 8080, false},
		{"0.0.0.0:443", 443, false},
		{"[::1]:9000", 9000, false},
		{"8080", 0, true},
		{":http", 0, true},
		{":0", 0, true},
		{":70000", 0, true},
	}
	for _, tt := range tests {
		got, err := PortFromAddr(tt.addr)
		if tt.wantErr {
			assert.Error(t, err, tt.addr)
			continue
		}
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.want, got, tt.addr)
	}
}

func TestTXTStringsSorted(t *testing.T) {
	got := TXTStrings(map[string]string{"path": "/api", "device": "doorbell", "version": "1"})
	assert.Equal(t, []string{"device=doorbell", "path=/api", "version=1"}, got)
	assert.Empty(t, TXTStrings(nil))
}

func TestStartRegistersService(t *testing.T) {
	a := NewAdvertiser(Config{Port: 8080, TXT: map[string]string{"path": "/api"}})

	var gotInstance, gotService, gotDomain string
	var gotPort int
	var gotTXT []string
	a.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface, _ ...zeroconf.ServerOption) (*zeroconf.Server, error) {
		gotInstance, gotService, gotDomain, gotPort, gotTXT = instance, service, domain, port, text
		assert.Nil(t, ifaces)
		return nil, nil
	}

	require.NoError(t, a.Start())
	assert.Equal(t, "Doorbell", gotInstance)
	assert.Equal(t, "_http._tcp", gotService)
	assert.Equal(t, "local.", gotDomain)
	assert.Equal(t, 8080, gotPort)
	assert.Equal(t, []string{"path=/api"}, gotTXT)
	a.Stop()
}

func TestStartErrors(t *testing.T) {
	a := NewAdvertiser(Config{Port: 0})
	assert.Error(t, a.Start())

	a = NewAdvertiser(Config{Port: 80})
	a.register = func(string, string, string, int, []string, []net.Interface, ...zeroconf.ServerOption) (*zeroconf.Server, error) {
		return nil, errors.New("no multicast")
	}
	assert.ErrorContains(t, a.Start(), "no multicast")
}

func TestInstanceNameTruncated(t *testing.T) {
	a := NewAdvertiser(Config{Instance: strings.Repeat("x", 80), Port: 80})
	assert.Len(t, a.cfg.Instance, MaxInstanceNameLen)
}
