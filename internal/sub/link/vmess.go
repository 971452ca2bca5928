package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// vmess://<base64 of the v2rayN JSON share object>
func decodeVMess(raw string) (model.Outbound, error) {
	b, err := DecodeBase64(trimScheme(raw))
	if err != nil {
		return model.Outbound{}, newParseError(SchemeVMess, raw, "vmess base64 解码失败", err)
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return model.Outbound{}, newParseError(SchemeVMess, raw, "vmess JSON 解析失败", err)
	}

	add := jsonString(obj["add"])
	portStr := jsonString(obj["port"])
	id := jsonString(obj["id"])
	if add == "" || portStr == "" || id == "" {
		return model.Outbound{}, newParseError(SchemeVMess, raw, "vmess 缺少 add/port/id", nil)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return model.Outbound{}, newParseError(SchemeVMess, raw, "vmess 端口不合法", err)
	}
	alterID := 0
	if s := jsonString(obj["aid"]); s != "" {
		alterID, err = strconv.Atoi(s)
		if err != nil {
			return model.Outbound{}, newParseError(SchemeVMess, raw, "vmess aid 不是整数", err)
		}
	}

	ob := model.Outbound{
		Type:       model.TypeVMess,
		Tag:        firstNonEmpty(strings.TrimSpace(jsonString(obj["ps"])), model.DefaultTag),
		Server:     strings.Trim(add, "[]"),
		ServerPort: port,
		UUID:       id,
		Security:   firstNonEmpty(jsonString(obj["scy"]), "auto"),
		AlterID:    alterID,
	}
	if jsonString(obj["tls"]) == "tls" {
		ob.TLS = tlsOverlay(firstNonEmpty(jsonString(obj["sni"]), ob.Server), isTruthy(jsonString(obj["allowInsecure"])))
		ob.TLS = withFingerprint(ob.TLS, jsonString(obj["fp"]))
	}
	path := jsonString(obj["path"])
	ob.Transport = transportOverlay(jsonString(obj["net"]), path, jsonString(obj["host"]), path, ob.Server)
	return ob, nil
}

// jsonString renders the scalar forms share objects use interchangeably.
func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

var errEmptyCredential = errors.New("empty credential")
