package link

import (
	"net/url"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// vless://uuid@host:port?type=ws&security=reality&pbk=...&sid=...#name
func decodeVLESS(raw string) (model.Outbound, error) {
	l, err := splitUserLink(SchemeVLESS, raw)
	if err != nil {
		return model.Outbound{}, err
	}
	if l.User == "" {
		return model.Outbound{}, newParseError(SchemeVLESS, raw, "vless 缺少 uuid", errEmptyCredential)
	}
	q := l.Query
	ob := model.Outbound{
		Type:       model.TypeVLESS,
		Tag:        l.Name,
		Server:     l.Host,
		ServerPort: l.Port,
		UUID:       l.User,
		Flow:       q.Get("flow"),
	}
	ob.TLS = securityOverlay(q, l.Host, false)
	ob.Transport = transportOverlay(q.Get("type"), q.Get("path"), q.Get("host"), q.Get("serviceName"), l.Host)
	return ob, nil
}

// trojan://password@host:port?sni=...#name
func decodeTrojan(raw string) (model.Outbound, error) {
	l, err := splitUserLink(SchemeTrojan, raw)
	if err != nil {
		return model.Outbound{}, err
	}
	password := unescape(l.User, false)
	if password == "" {
		return model.Outbound{}, newParseError(SchemeTrojan, raw, "trojan 缺少 password", errEmptyCredential)
	}
	q := l.Query
	ob := model.Outbound{
		Type:       model.TypeTrojan,
		Tag:        l.Name,
		Server:     l.Host,
		ServerPort: l.Port,
		Password:   password,
	}
	ob.TLS = securityOverlay(q, l.Host, true)
	ob.Transport = transportOverlay(q.Get("type"), q.Get("path"), q.Get("host"), q.Get("serviceName"), l.Host)
	return ob, nil
}

// securityOverlay reads security/sni/fp/pbk/sid. tlsByDefault applies when
// the link carries no security parameter at all.
func securityOverlay(q url.Values, server string, tlsByDefault bool) *model.TLS {
	get := q.Get
	security := strings.ToLower(get("security"))
	if security == "" && tlsByDefault {
		security = "tls"
	}
	if security != "tls" && security != "reality" {
		return nil
	}
	insecure := isTruthy(get("allowInsecure")) || isTruthy(get("insecure"))
	t := tlsOverlay(firstNonEmpty(get("sni"), get("peer"), server), insecure)
	t = withFingerprint(t, get("fp"))
	if security == "reality" {
		t.Reality = &model.Reality{Enabled: true, PublicKey: get("pbk"), ShortID: get("sid")}
	}
	return t
}
