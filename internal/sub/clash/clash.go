// Package clash converts entries of a Clash YAML "proxies" list into
// outbound records.
package clash

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/sub/link"
)

const (
	CodeUnsupportedType = "SUB_UNSUPPORTED_TYPE"
	CodeMalformed       = link.CodeMalformed
)

type ConvertError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConvertError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConvertError) Unwrap() error { return e.Cause }

func newConvertError(code, typ, name, message string, cause error) error {
	return &ConvertError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_sub",
			Snippet: link.TruncateSnippet(name, 200),
			Hint:    "type: " + typ,
		},
		Cause: cause,
	}
}

// EntryType returns the lowercased "type" of an entry, or "unknown".
func EntryType(entry map[string]any) string {
	if t := strings.ToLower(str(entry, "type")); t != "" {
		return t
	}
	return model.DefaultTag
}

type convertFunc func(e entry) (model.Outbound, error)

var converters = map[string]convertFunc{
	"vmess":     convertVMess,
	"vless":     convertVLESS,
	"trojan":    convertTrojan,
	"ss":        convertShadowsocks,
	"hysteria":  convertHysteria,
	"hysteria2": convertHysteria2,
}

// Convert maps one Clash proxy entry. Any failure, including an unknown
// type, returns a *ConvertError and no record.
func Convert(raw map[string]any) (model.Outbound, error) {
	typ := EntryType(raw)
	name := str(raw, "name")
	fn, ok := converters[typ]
	if !ok {
		return model.Outbound{}, newConvertError(CodeUnsupportedType, typ, name, "不支持的代理类型", nil)
	}
	ob, err := fn(entry(raw))
	if err != nil {
		return model.Outbound{}, newConvertError(CodeMalformed, typ, name, "代理字段不合法", err)
	}
	if err := ob.Validate(); err != nil {
		return model.Outbound{}, newConvertError(CodeMalformed, typ, name, "节点字段校验失败", err)
	}
	return ob, nil
}

func convertVMess(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeVMess, 443)
	if err != nil {
		return ob, err
	}
	ob.UUID = e.str("uuid")
	ob.Security = firstNonEmpty(e.str("cipher"), "auto")
	if ob.AlterID, err = e.integer("alterId", 0); err != nil {
		return model.Outbound{}, err
	}
	if e.flag("tls") {
		ob.TLS = e.tls(firstNonEmpty(e.str("servername"), e.str("sni")))
	}
	ob.Transport = e.transport()
	return ob, nil
}

func convertVLESS(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeVLESS, 443)
	if err != nil {
		return ob, err
	}
	ob.UUID = e.str("uuid")
	ob.Flow = e.str("flow")
	reality := e.mapping("reality-opts")
	if e.flag("tls") || reality != nil {
		ob.TLS = e.tls(firstNonEmpty(e.str("servername"), e.str("sni")))
		if reality != nil {
			ob.TLS.Reality = &model.Reality{
				Enabled:   true,
				PublicKey: reality.str("public-key"),
				ShortID:   reality.str("short-id"),
			}
		}
	}
	ob.Transport = e.transport()
	return ob, nil
}

func convertTrojan(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeTrojan, 443)
	if err != nil {
		return ob, err
	}
	ob.Password = e.str("password")
	ob.TLS = e.tls(firstNonEmpty(e.str("sni"), e.str("servername")))
	ob.Transport = e.transport()
	return ob, nil
}

func convertShadowsocks(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeShadowsocks, 8388)
	if err != nil {
		return ob, err
	}
	ob.Method = firstNonEmpty(e.str("cipher"), "aes-256-gcm")
	ob.Password = e.str("password")
	if plugin := e.str("plugin"); plugin != "" {
		ob.Plugin = link.NormalizePluginName(plugin)
		ob.PluginOpts = pluginOpts(ob.Plugin, e.mapping("plugin-opts"))
	}
	return ob, nil
}

func convertHysteria(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeHysteria, 443)
	if err != nil {
		return ob, err
	}
	if ob.UpMbps, ob.DownMbps, err = e.bandwidth(); err != nil {
		return model.Outbound{}, err
	}
	ob.AuthStr = firstNonEmpty(e.str("auth_str"), e.str("auth-str"), e.str("password"))
	if obfs := e.str("obfs"); obfs != "" {
		ob.Obfs = &model.Obfs{Password: obfs}
	}
	ob.TLS = e.tls(firstNonEmpty(e.str("sni"), e.str("servername")))
	return ob, nil
}

func convertHysteria2(e entry) (model.Outbound, error) {
	ob, err := e.base(model.TypeHysteria2, 443)
	if err != nil {
		return ob, err
	}
	if ob.UpMbps, ob.DownMbps, err = e.bandwidth(); err != nil {
		return model.Outbound{}, err
	}
	ob.Password = e.str("password")
	switch {
	case e.str("obfs-password") != "":
		ob.Obfs = &model.Obfs{Type: firstNonEmpty(e.str("obfs"), "salamander"), Password: e.str("obfs-password")}
	case e.mapping("obfs") != nil:
		m := e.mapping("obfs")
		ob.Obfs = &model.Obfs{Type: firstNonEmpty(m.str("type"), "salamander"), Password: m.str("password")}
	case e.str("obfs") != "":
		ob.Obfs = &model.Obfs{Type: "salamander", Password: e.str("obfs")}
	}
	ob.TLS = e.tls(firstNonEmpty(e.str("sni"), e.str("servername")))
	return ob, nil
}

// pluginOpts renders Clash plugin-opts in the engine's "k=v;k=v" form.
func pluginOpts(plugin string, opts entry) string {
	if plugin == "obfs-local" {
		parts := []string{"obfs=" + firstNonEmpty(opts.str("mode"), "http")}
		if host := opts.str("host"); host != "" {
			parts = append(parts, "obfs-host="+host)
		}
		return strings.Join(parts, ";")
	}
	if len(opts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := opts.str(k)
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ";")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var errMissingServer = errors.New("missing server")

// entry wraps a decoded YAML mapping; yaml.v3 yields int, float64, bool
// and string scalars.
type entry map[string]any

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (e entry) str(key string) string { return str(e, key) }

func (e entry) integer(key string, def int) (int, error) {
	switch v := e[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("%s: unexpected %T", key, v)
	}
}

func (e entry) flag(key string) bool {
	switch v := e[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case int:
		return v != 0
	default:
		return false
	}
}

func (e entry) mapping(key string) entry {
	switch v := e[key].(type) {
	case map[string]any:
		return entry(v)
	case map[any]any:
		out := make(entry, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out
	default:
		return nil
	}
}

func (e entry) base(typ string, defaultPort int) (model.Outbound, error) {
	server := strings.Trim(e.str("server"), "[]")
	if server == "" {
		return model.Outbound{}, errMissingServer
	}
	port, err := e.integer("port", defaultPort)
	if err != nil {
		return model.Outbound{}, err
	}
	return model.Outbound{
		Type:       typ,
		Tag:        firstNonEmpty(e.str("name"), model.DefaultTag),
		Server:     server,
		ServerPort: port,
	}, nil
}

func (e entry) tls(serverName string) *model.TLS {
	t := &model.TLS{
		Enabled:    true,
		ServerName: firstNonEmpty(serverName, strings.Trim(e.str("server"), "[]")),
		Insecure:   e.flag("skip-cert-verify"),
	}
	if fp := e.str("client-fingerprint"); fp != "" {
		t.UTLS = &model.UTLS{Enabled: true, Fingerprint: fp}
	}
	return t
}

func (e entry) transport() *model.Transport {
	switch strings.ToLower(e.str("network")) {
	case "ws":
		opts := e.mapping("ws-opts")
		t := &model.Transport{Type: "ws", Path: firstNonEmpty(opts.str("path"), "/")}
		if headers := opts.mapping("headers"); len(headers) > 0 {
			t.Headers = make(map[string]string, len(headers))
			for k := range headers {
				t.Headers[k] = headers.str(k)
			}
		}
		return t
	case "grpc":
		return &model.Transport{Type: "grpc", ServiceName: e.mapping("grpc-opts").str("grpc-service-name")}
	default:
		return nil
	}
}

func (e entry) bandwidth() (int, int, error) {
	up, err := link.ParseMbps(e.str("up"))
	if err != nil {
		return 0, 0, fmt.Errorf("up: %w", err)
	}
	down, err := link.ParseMbps(e.str("down"))
	if err != nil {
		return 0, 0, fmt.Errorf("down: %w", err)
	}
	return up, down, nil
}
