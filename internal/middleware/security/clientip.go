package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"hisab/internal/log"
)

// Detector resolves client addresses and recognises scanner traffic.
type Detector struct {
	trustedProxies []*net.IPNet
	probes         atomic.Int64
	logger         *log.Logger
}

// NewDetector trusts loopback and private networks as reverse proxies.
func NewDetector(logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.NewDiscard()
	}
	d := &Detector{logger: logger.WithComponent(log.ComponentSecurity)}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractClientIP honours X-Forwarded-For and X-Real-IP only when the direct
// peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

var probePatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", ".git", ".ssh",
	"<script", "union select", "etc/passwd", "cmd.exe",
}

// IsProbe reports requests that look like vulnerability scanning.
func IsProbe(r *http.Request) bool {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return true
	}
	if len(r.URL.String()) > 2048 {
		return true
	}
	path := strings.ToLower(r.URL.Path)
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	query = strings.ToLower(query)
	for _, p := range probePatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return true
		}
	}
	return false
}

// Middleware answers probes with 404 before they reach any handler.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsProbe(r) {
			d.probes.Add(1)
			d.logger.WarnContext(r.Context(), "Rejected probe request",
				log.NewFields().WithClientIP(d.ExtractClientIP(r)).
					WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).ToSlice()...)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Probes counts rejected probe requests.
func (d *Detector) Probes() int64 {
	return d.probes.Load()
}
