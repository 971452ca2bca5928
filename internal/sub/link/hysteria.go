package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// DefaultMbps is the bandwidth assumed when a link does not declare one.
const DefaultMbps = 100

// hysteria://host:port?auth=...&upmbps=..&downmbps=..&obfs=..&peer=..#name
func decodeHysteria(raw string) (model.Outbound, error) {
	rest, frag, _ := strings.Cut(trimScheme(raw), "#")
	hostPart, query, _ := strings.Cut(rest, "?")
	server, port, err := splitHostPort(hostPart)
	if err != nil {
		return model.Outbound{}, newParseError(SchemeHysteria, raw, "服务器地址或端口不合法", err)
	}
	q := parseQuery(query)
	auth := q.Get("auth")
	if auth == "" {
		return model.Outbound{}, newParseError(SchemeHysteria, raw, "hysteria 缺少 auth 参数", errEmptyCredential)
	}
	up, err := ParseMbps(q.Get("upmbps"))
	if err != nil {
		return model.Outbound{}, newParseError(SchemeHysteria, raw, "upmbps 不是正整数", err)
	}
	down, err := ParseMbps(q.Get("downmbps"))
	if err != nil {
		return model.Outbound{}, newParseError(SchemeHysteria, raw, "downmbps 不是正整数", err)
	}

	ob := model.Outbound{
		Type:       model.TypeHysteria,
		Tag:        resolveName(frag, nil),
		Server:     server,
		ServerPort: port,
		AuthStr:    auth,
		UpMbps:     up,
		DownMbps:   down,
		TLS:        tlsOverlay(firstNonEmpty(q.Get("peer"), server), isTruthy(q.Get("insecure"))),
	}
	// obfs=xplus&obfsParam=secret is the long form; bare obfs=secret is the short one.
	if secret := firstNonEmpty(q.Get("obfsParam"), q.Get("obfs")); secret != "" {
		ob.Obfs = &model.Obfs{Password: secret}
	}
	return ob, nil
}

// hysteria2://auth@host:port?sni=..&obfs=salamander&obfs-password=..#name
func decodeHysteria2(raw string) (model.Outbound, error) {
	l, err := splitUserLink(SchemeHysteria2, raw)
	if err != nil {
		return model.Outbound{}, err
	}
	if l.User == "" {
		return model.Outbound{}, newParseError(SchemeHysteria2, raw, "hysteria2 缺少 auth", errEmptyCredential)
	}
	q := l.Query
	up, err := ParseMbps(q.Get("up"))
	if err != nil {
		return model.Outbound{}, newParseError(SchemeHysteria2, raw, "up 不是正整数", err)
	}
	down, err := ParseMbps(q.Get("down"))
	if err != nil {
		return model.Outbound{}, newParseError(SchemeHysteria2, raw, "down 不是正整数", err)
	}

	ob := model.Outbound{
		Type:       model.TypeHysteria2,
		Tag:        l.Name,
		Server:     l.Host,
		ServerPort: l.Port,
		Password:   l.User,
		UpMbps:     up,
		DownMbps:   down,
		TLS:        tlsOverlay(firstNonEmpty(q.Get("sni"), l.Host), isTruthy(q.Get("insecure"))),
	}
	if pw := q.Get("obfs-password"); pw != "" {
		ob.Obfs = &model.Obfs{Type: firstNonEmpty(q.Get("obfs"), "salamander"), Password: pw}
	}
	return ob, nil
}

// ParseMbps parses "100", "100 mbps" or "" (default). Values below 1 are
// rejected.
func ParseMbps(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "mbps"))
	if s == "" {
		return DefaultMbps, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("bandwidth %d mbps out of range", n)
	}
	return n, nil
}
