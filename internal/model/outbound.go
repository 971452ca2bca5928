package model

import "encoding/json"

// Outbound types produced by the decoders.
const (
	TypeVMess       = "vmess"
	TypeVLESS       = "vless"
	TypeTrojan      = "trojan"
	TypeShadowsocks = "shadowsocks"
	TypeHysteria    = "hysteria"
	TypeHysteria2   = "hysteria2"
)

// DefaultTag is used when a descriptor carries no usable name.
const DefaultTag = "unknown"

// Outbound is the canonical node record emitted by every decoder. Field order
// is the JSON key order of the persisted document.
//
// Tag is not guaranteed to be unique: duplicates are kept in merge order and
// referenced as-is by proxy groups.
type Outbound struct {
	Type       string `json:"type" validate:"oneof=vmess vless trojan shadowsocks hysteria hysteria2"`
	Tag        string `json:"tag"`
	Server     string `json:"server" validate:"required,excludesall=[]"`
	ServerPort int    `json:"server_port" validate:"min=1,max=65535"`

	UUID     string `json:"uuid,omitempty"`
	Security string `json:"security,omitempty"` // vmess cipher
	AlterID  int    `json:"alter_id,omitempty"`
	Flow     string `json:"flow,omitempty"`

	Method     string `json:"method,omitempty"`
	Password   string `json:"password,omitempty"`
	Plugin     string `json:"plugin,omitempty"`
	PluginOpts string `json:"plugin_opts,omitempty"`

	UpMbps   int    `json:"up_mbps,omitempty"`
	DownMbps int    `json:"down_mbps,omitempty"`
	AuthStr  string `json:"auth_str,omitempty"`
	Obfs     *Obfs  `json:"obfs,omitempty"`

	TLS       *TLS       `json:"tls,omitempty"`
	Transport *Transport `json:"transport,omitempty"`
}

type TLS struct {
	Enabled    bool     `json:"enabled"`
	ServerName string   `json:"server_name,omitempty"`
	Insecure   bool     `json:"insecure"`
	UTLS       *UTLS    `json:"utls,omitempty"`
	Reality    *Reality `json:"reality,omitempty"`
}

type UTLS struct {
	Enabled     bool   `json:"enabled"`
	Fingerprint string `json:"fingerprint"`
}

type Reality struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"public_key"`
	ShortID   string `json:"short_id"`
}

// Transport is only attached for ws and grpc; anything else means raw TCP.
type Transport struct {
	Type        string            `json:"type"`
	Path        string            `json:"path,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
}

// Obfs is a string for hysteria and an object for hysteria2. An empty Type
// selects the string form.
type Obfs struct {
	Type     string
	Password string
}

func (o Obfs) MarshalJSON() ([]byte, error) {
	if o.Type == "" {
		return json.Marshal(o.Password)
	}
	return json.Marshal(struct {
		Type     string `json:"type"`
		Password string `json:"password"`
	}{Type: o.Type, Password: o.Password})
}

func (o *Obfs) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = Obfs{Password: s}
		return nil
	}
	var v struct {
		Type     string `json:"type"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Obfs{Type: v.Type, Password: v.Password}
	return nil
}
