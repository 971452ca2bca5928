// Package link decodes single-line proxy descriptors (vmess://, vless://,
// trojan://, ss://, hysteria://, hysteria2:// and hy2://) into outbound
// records.
package link

import (
	"errors"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

type Scheme string

const (
	SchemeVMess       Scheme = "vmess"
	SchemeVLESS       Scheme = "vless"
	SchemeTrojan      Scheme = "trojan"
	SchemeShadowsocks Scheme = "ss"
	SchemeHysteria    Scheme = "hysteria"
	SchemeHysteria2   Scheme = "hysteria2"
)

// DecodeFunc turns one descriptor line into a record. It must not return a
// partially filled record together with a nil error.
type DecodeFunc func(raw string) (model.Outbound, error)

var decoders = map[Scheme]DecodeFunc{
	SchemeVMess:       decodeVMess,
	SchemeVLESS:       decodeVLESS,
	SchemeTrojan:      decodeTrojan,
	SchemeShadowsocks: decodeShadowsocks,
	SchemeHysteria:    decodeHysteria,
	SchemeHysteria2:   decodeHysteria2,
}

var prefixes = []struct {
	prefix string
	scheme Scheme
}{
	{"vmess://", SchemeVMess},
	{"vless://", SchemeVLESS},
	{"trojan://", SchemeTrojan},
	{"ss://", SchemeShadowsocks},
	{"hysteria://", SchemeHysteria},
	{"hysteria2://", SchemeHysteria2},
	{"hy2://", SchemeHysteria2},
}

// Detect reports which supported scheme a line starts with. Matching is
// case-sensitive, as subscription providers emit lowercase prefixes.
func Detect(line string) (Scheme, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.scheme, true
		}
	}
	return "", false
}

// SchemeName returns the text before "://" exactly as written, or "" when
// the line has no scheme marker.
func SchemeName(line string) string {
	name, _, ok := strings.Cut(line, "://")
	if !ok || name == "" || strings.ContainsAny(name, " \t/") {
		return ""
	}
	return name
}

// Decode runs the decoder registered for s and validates its result.
func Decode(s Scheme, raw string) (model.Outbound, error) {
	fn, ok := decoders[s]
	if !ok {
		return model.Outbound{}, newParseError(s, raw, "不支持的协议", errors.New("no decoder for scheme"))
	}
	ob, err := fn(raw)
	if err != nil {
		return model.Outbound{}, err
	}
	if err := ob.Validate(); err != nil {
		return model.Outbound{}, newParseError(s, raw, "节点字段校验失败", err)
	}
	return ob, nil
}

// DecodeLine detects the scheme of line and decodes it.
func DecodeLine(line string) (model.Outbound, error) {
	s, ok := Detect(line)
	if !ok {
		return model.Outbound{}, newParseError(Scheme(SchemeName(line)), line, "不支持的协议", nil)
	}
	return Decode(s, line)
}
