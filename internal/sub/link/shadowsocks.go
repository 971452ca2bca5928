package link

import (
	"errors"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// ss://<method:password or its base64>@host:port[/?plugin=...]#name
// ss://<base64 of method:password@host:port>#name
func decodeShadowsocks(raw string) (model.Outbound, error) {
	rest, frag, _ := strings.Cut(trimScheme(raw), "#")
	rest, query, _ := strings.Cut(rest, "?")
	rest = strings.TrimSuffix(rest, "/")

	var cred, hostPort string
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		cred, hostPort = rest[:at], rest[at+1:]
		if !strings.Contains(cred, ":") {
			b, err := DecodeBase64(unescape(cred, false))
			if err != nil {
				return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "ss 用户信息 base64 解码失败", err)
			}
			cred = string(b)
		} else {
			cred = unescape(cred, false)
		}
	} else {
		b, err := DecodeBase64(rest)
		if err != nil {
			return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "ss base64 解码失败", err)
		}
		decoded := string(b)
		// Some providers put the name inside the encoded part.
		if before, name, ok := strings.Cut(decoded, "#"); ok {
			decoded = before
			if frag == "" {
				frag = name
			}
		}
		at := strings.LastIndexByte(decoded, '@')
		if at < 0 {
			return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "ss 解码结果缺少 @ 分隔符", nil)
		}
		cred, hostPort = decoded[:at], decoded[at+1:]
	}

	method, password, ok := strings.Cut(cred, ":")
	method = strings.TrimSpace(method)
	if !ok || method == "" || password == "" {
		return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "ss 缺少 method:password", errEmptyCredential)
	}
	server, port, err := splitHostPort(hostPort)
	if err != nil {
		return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "服务器地址或端口不合法", err)
	}

	ob := model.Outbound{
		Type:       model.TypeShadowsocks,
		Tag:        resolveName(frag, nil),
		Server:     server,
		ServerPort: port,
		Method:     method,
		Password:   password,
	}
	if plugin := parseQuery(query).Get("plugin"); plugin != "" {
		name, opts, err := splitPlugin(plugin)
		if err != nil {
			return model.Outbound{}, newParseError(SchemeShadowsocks, raw, "ss plugin 参数不合法", err)
		}
		ob.Plugin, ob.PluginOpts = name, opts
	}
	return ob, nil
}

// splitPlugin turns "obfs-local;obfs=http;obfs-host=x" into the plugin name
// and its "k=v;k=v" option string.
func splitPlugin(v string) (string, string, error) {
	segs := strings.Split(v, ";")
	name := NormalizePluginName(strings.TrimSpace(segs[0]))
	if name == "" {
		return "", "", errors.New("empty plugin name")
	}
	opts := make([]string, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		k, _, _ := strings.Cut(seg, "=")
		if strings.TrimSpace(k) == "" {
			return "", "", errors.New("empty plugin option key")
		}
		opts = append(opts, seg)
	}
	return name, strings.Join(opts, ";"), nil
}

// NormalizePluginName maps client-side plugin aliases to the names the
// engine accepts.
func NormalizePluginName(name string) string {
	switch strings.ToLower(name) {
	case "simple-obfs", "obfs":
		return "obfs-local"
	default:
		return name
	}
}
