package link

import "testing"

func FuzzDecodeLine(f *testing.F) {
	seed := []string{
		"",
		"vless://u@example.com:443?security=tls#n",
		"trojan://pw@[::1]:443",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201",
		"ss://aes-256-gcm:pw@example.com:8388/?plugin=obfs-local%3Bobfs%3Dhttp",
		"hysteria://example.com:1?auth=a",
		"hy2://a@example.com:443?obfs-password=x",
		"vmess://eyJhZGQiOiJhLmV4YW1wbGUiLCJwb3J0Ijo0NDMsImlkIjoidSJ9",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, line string) {
		ob, err := DecodeLine(line)
		if err != nil {
			return
		}
		if ob.Server == "" {
			t.Fatalf("empty server on nil error")
		}
		if ob.ServerPort < 1 || ob.ServerPort > 65535 {
			t.Fatalf("port out of range: %d", ob.ServerPort)
		}
		if ob.Tag == "" {
			t.Fatalf("empty tag on nil error")
		}
		if (ob.Type == "hysteria" || ob.Type == "hysteria2") && (ob.UpMbps < 1 || ob.DownMbps < 1) {
			t.Fatalf("bandwidth up/down=%d/%d", ob.UpMbps, ob.DownMbps)
		}
		if ob.Type == "hysteria2" && ob.Password == "" {
			t.Fatalf("hysteria2 without auth on nil error")
		}
	})
}
