// Package sanitize validates externally supplied identifiers, URLs and
// filenames before they reach the network or the filesystem.
package sanitize

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"research-master/internal/errors"
)

const maxIDLength = 256

// shell metacharacters and quoting characters never valid in a paper id
const idBlocklist = ";|&$><`'\"\\"

// PaperID rejects identifiers that could escape into a shell, a path, or
// a control sequence. Adapters layer their own format checks on top.
func PaperID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.InvalidRequest("paper id must not be empty")
	}
	if len(id) > maxIDLength {
		return errors.InvalidRequestf("paper id exceeds %d characters", maxIDLength)
	}
	if strings.Contains(id, "..") {
		return errors.InvalidRequest("paper id must not contain '..'")
	}
	if strings.HasPrefix(id, "/") || strings.HasPrefix(id, "~") {
		return errors.InvalidRequest("paper id must not start with a path prefix")
	}
	if strings.ContainsAny(id, idBlocklist) {
		return errors.InvalidRequest("paper id contains forbidden characters")
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return errors.InvalidRequest("paper id contains control characters")
		}
	}
	return nil
}

// CanonicalDOI normalizes and validates a DOI: lowercase, no resolver
// prefix, must start with "10." and contain a slash.
func CanonicalDOI(s string) (string, error) {
	doi := strings.TrimSpace(s)
	if doi == "" {
		return "", errors.InvalidRequest("doi must not be empty")
	}
	for _, prefix := range []string{
		"https://doi.org/", "http://doi.org/",
		"https://dx.doi.org/", "http://dx.doi.org/",
		"doi.org/", "doi:",
	} {
		if strings.HasPrefix(strings.ToLower(doi), prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	doi = strings.ToLower(strings.TrimSpace(doi))
	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return "", errors.InvalidRequestf("invalid doi %q", s)
	}
	return doi, nil
}

// URL accepts only absolute http(s) URLs that cannot point the client at
// itself or at private address space. Hostnames are checked literally;
// no DNS resolution happens here.
func URL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return errors.InvalidRequestf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.InvalidRequestf("unsupported url scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return errors.InvalidRequest("url has no host")
	}
	if blockedHostname(host) {
		return errors.InvalidRequestf("url host %q is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return errors.InvalidRequestf("url host %q is not allowed", host)
	}
	return nil
}

func blockedHostname(host string) bool {
	h := strings.ToLower(host)
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast()
}

const maxFilename = 255

// Filename reduces name to a safe single-component filename: every
// character outside [A-Za-z0-9._ -] becomes an underscore, length is
// capped preserving the extension, and the result is never empty.
func Filename(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ". ")
	if strings.Trim(out, "_ -") == "" {
		return "paper.pdf"
	}
	if len(out) > maxFilename {
		ext := filepath.Ext(out)
		if len(ext) >= maxFilename {
			ext = ""
		}
		out = out[:maxFilename-len(ext)] + ext
	}
	return out
}
