package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
)

// Reasons reported by Detect.
const (
	ReasonPathPattern  = "path_pattern"
	ReasonQueryPattern = "query_pattern"
	ReasonScanner      = "scanner_agent"
	ReasonMethod       = "unusual_method"
	ReasonLongURL      = "long_url"
	ReasonProxyChain   = "proxy_chain"
)

const maxURLLength = 2048

var (
	attackPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	scannerAgents  = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// Detector flags requests that look like probes and resolves the client IP
// behind trusted proxies.
type Detector struct {
	trustedProxies []*net.IPNet
	logger         *applog.Logger
	metrics        *metrics.Metrics
}

func NewDetector(logger *applog.Logger, m *metrics.Metrics) *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
		},
		logger:  logger,
		metrics: m,
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// Detect returns the first reason r looks hostile, or "".
func (d *Detector) Detect(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	query = strings.ToLower(query)
	for _, p := range attackPatterns {
		if strings.Contains(path, p) {
			return ReasonPathPattern
		}
		if strings.Contains(query, p) {
			return ReasonQueryPattern
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return ReasonScanner
		}
	}

	if slices.Contains(unusualMethods, r.Method) {
		return ReasonMethod
	}
	if len(r.URL.String()) > maxURLLength {
		return ReasonLongURL
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return ReasonProxyChain
	}
	return ""
}

// Middleware logs flagged requests. Unusual methods and attack patterns in
// the path are refused with 400; everything else passes through.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := d.Detect(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		d.metrics.Suspicious(reason)
		if d.logger != nil {
			d.logger.WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"reason", reason)
		}
		if reason == ReasonMethod || reason == ReasonPathPattern {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP honours X-Forwarded-For and X-Real-IP only when the
// direct peer is a trusted proxy.
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
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// AddTrustedProxy trusts forwarding headers from another network.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
