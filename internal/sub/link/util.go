package link

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// DecodeBase64 accepts standard and URL-safe alphabets, with or without
// padding, and ignores embedded whitespace.
func DecodeBase64(s string) ([]byte, error) {
	s = removeSpaceTabCRLF(s)
	if s == "" {
		return nil, errors.New("empty base64 input")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	// Wrong padding length: drop it and retry the raw alphabets.
	if trimmed := strings.TrimRight(s, "="); trimmed != s {
		for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
			if b, err := enc.DecodeString(trimmed); err == nil {
				return b, nil
			}
		}
	}
	return nil, lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func trimScheme(raw string) string {
	_, rest, _ := strings.Cut(raw, "://")
	return rest
}

// splitHostPort splits on the rightmost colon, strips IPv6 brackets and
// drops a trailing path such as "host:443/".
func splitHostPort(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", 0, errors.New("missing port")
	}
	host := strings.TrimSpace(s[:i])
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := parsePort(s[i+1:])
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, errors.New("port out of range")
	}
	return p, nil
}

// parseQuery splits on '&' only. net/url.ParseQuery rejects bare ';',
// which SIP002 plugin values carry.
func parseQuery(raw string) url.Values {
	q := url.Values{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k = unescape(k, true)
		if k == "" {
			continue
		}
		q.Add(k, unescape(v, true))
	}
	return q
}

// unescape percent-decodes s and falls back to s on malformed escapes.
// With plus set, '+' also decodes to a space as in form encoding.
func unescape(s string, plus bool) string {
	var (
		out string
		err error
	)
	if plus {
		out, err = url.QueryUnescape(s)
	} else {
		out, err = url.PathUnescape(s)
	}
	if err != nil {
		return s
	}
	return out
}

// resolveName picks the fragment, then the remarks query value, then the
// default tag.
func resolveName(fragment string, q url.Values) string {
	if name := strings.TrimSpace(unescape(fragment, false)); name != "" {
		return name
	}
	if q != nil {
		if name := strings.TrimSpace(q.Get("remarks")); name != "" {
			return name
		}
	}
	return model.DefaultTag
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// userLink is the "user@host:port?query#fragment" shape shared by vless,
// trojan and hysteria2.
type userLink struct {
	User  string
	Host  string
	Port  int
	Query url.Values
	Name  string
}

func splitUserLink(s Scheme, raw string) (userLink, error) {
	rest, frag, _ := strings.Cut(trimScheme(raw), "#")
	rest, query, _ := strings.Cut(rest, "?")
	at := strings.LastIndexByte(rest, '@')
	if at < 0 {
		return userLink{}, newParseError(s, raw, "缺少 @ 分隔符", nil)
	}
	user, hostPart := rest[:at], rest[at+1:]
	host, port, err := splitHostPort(hostPart)
	if err != nil {
		return userLink{}, newParseError(s, raw, "服务器地址或端口不合法", err)
	}
	q := parseQuery(query)
	return userLink{
		User:  user,
		Host:  host,
		Port:  port,
		Query: q,
		Name:  resolveName(frag, q),
	}, nil
}

func tlsOverlay(serverName string, insecure bool) *model.TLS {
	return &model.TLS{Enabled: true, ServerName: serverName, Insecure: insecure}
}

func withFingerprint(t *model.TLS, fp string) *model.TLS {
	if t != nil && fp != "" {
		t.UTLS = &model.UTLS{Enabled: true, Fingerprint: fp}
	}
	return t
}

// transportOverlay returns nil for anything other than ws and grpc.
func transportOverlay(typ, path, host, serviceName, server string) *model.Transport {
	switch strings.ToLower(typ) {
	case "ws":
		if path == "" {
			path = "/"
		}
		return &model.Transport{
			Type:    "ws",
			Path:    path,
			Headers: map[string]string{"Host": firstNonEmpty(host, server)},
		}
	case "grpc":
		return &model.Transport{Type: "grpc", ServiceName: serviceName}
	default:
		return nil
	}
}
