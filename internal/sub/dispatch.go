// Package sub turns one fetched subscription body into outbound records.
//
// A body is either a Clash YAML document with a "proxies" list, a base64
// blob wrapping a line list, or a plain line list of share links.
package sub

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/sub/clash"
	"github.com/John-Robertt/singsub/internal/sub/link"
)

type Format string

const (
	FormatEmpty  Format = "empty"
	FormatClash  Format = "clash"
	FormatBase64 Format = "base64"
	FormatPlain  Format = "plain"
)

type SkipReason string

const (
	ReasonUnsupported SkipReason = "unsupported"
	ReasonMalformed   SkipReason = "malformed"
	ReasonNoScheme    SkipReason = "no_scheme"
)

// Skip explains why one line (or Clash entry, 1-based) produced no record.
type Skip struct {
	Line   int
	Scheme string
	Reason SkipReason
	Err    error
}

type Report struct {
	Format    Format
	Outbounds []model.Outbound
	// Unsupported lists scheme or Clash type names in first-seen order,
	// each once.
	Unsupported []string
	Skips       []Skip
}

func (r *Report) addUnsupported(name string) {
	if !lo.Contains(r.Unsupported, name) {
		r.Unsupported = append(r.Unsupported, name)
	}
}

// Merge appends o after r, keeping record order and unsupported uniqueness.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	r.Outbounds = append(r.Outbounds, o.Outbounds...)
	r.Unsupported = lo.Uniq(append(r.Unsupported, o.Unsupported...))
	r.Skips = append(r.Skips, o.Skips...)
}

// ParseSubscriptionText never fails as a whole: bad lines become Skips and
// an empty or unrecognized body yields an empty report.
func ParseSubscriptionText(sourceURL string, content string) *Report {
	rep := &Report{Format: FormatEmpty}
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return rep
	}

	if proxies, ok := clashProxies(s); ok {
		rep.Format = FormatClash
		parseClash(rep, sourceURL, proxies)
		return rep
	}

	rep.Format = FormatPlain
	if b, err := link.DecodeBase64(s); err == nil && utf8.Valid(b) {
		if decoded := strings.TrimSpace(stripUTF8BOM(string(b))); decoded != "" {
			rep.Format = FormatBase64
			s = decoded
		}
	}
	parseLines(rep, sourceURL, s)
	return rep
}

// clashProxies reports whether s is a YAML mapping carrying a "proxies"
// sequence. A null "proxies" counts as an empty list.
func clashProxies(s string) ([]any, bool) {
	var doc any
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m["proxies"]
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case nil:
		return nil, true
	case []any:
		return list, true
	default:
		return nil, false
	}
}

func parseClash(rep *Report, sourceURL string, proxies []any) {
	for i, item := range proxies {
		entry, ok := item.(map[string]any)
		if !ok {
			rep.addUnsupported(model.DefaultTag)
			rep.Skips = append(rep.Skips, Skip{Line: i + 1, Scheme: model.DefaultTag, Reason: ReasonUnsupported, Err: errors.New("proxy entry is not a mapping")})
			continue
		}
		typ := clash.EntryType(entry)
		ob, err := safeConvert(entry)
		if err != nil {
			annotate(err, sourceURL, i+1)
			rep.addUnsupported(typ)
			rep.Skips = append(rep.Skips, Skip{Line: i + 1, Scheme: typ, Reason: ReasonUnsupported, Err: err})
			continue
		}
		rep.Outbounds = append(rep.Outbounds, ob)
	}
}

func parseLines(rep *Report, sourceURL, s string) {
	for i, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		scheme, ok := link.Detect(line)
		if !ok {
			if name := link.SchemeName(line); name != "" {
				rep.addUnsupported(name)
				rep.Skips = append(rep.Skips, Skip{Line: i + 1, Scheme: name, Reason: ReasonUnsupported})
			} else {
				rep.Skips = append(rep.Skips, Skip{Line: i + 1, Reason: ReasonNoScheme})
			}
			continue
		}
		ob, err := safeDecode(scheme, line)
		if err != nil {
			annotate(err, sourceURL, i+1)
			rep.Skips = append(rep.Skips, Skip{Line: i + 1, Scheme: string(scheme), Reason: ReasonMalformed, Err: err})
			continue
		}
		rep.Outbounds = append(rep.Outbounds, ob)
	}
}

func safeDecode(s link.Scheme, line string) (ob model.Outbound, err error) {
	defer func() {
		if r := recover(); r != nil {
			ob, err = model.Outbound{}, fmt.Errorf("%s decoder panic: %v", s, r)
		}
	}()
	return link.Decode(s, line)
}

func safeConvert(entry map[string]any) (ob model.Outbound, err error) {
	defer func() {
		if r := recover(); r != nil {
			ob, err = model.Outbound{}, fmt.Errorf("clash converter panic: %v", r)
		}
	}()
	return clash.Convert(entry)
}

// annotate fills the location fields the decoders cannot know.
func annotate(err error, sourceURL string, line int) {
	var pe *link.ParseError
	if errors.As(err, &pe) {
		pe.AppError.URL, pe.AppError.Line = sourceURL, line
		return
	}
	var ce *clash.ConvertError
	if errors.As(err, &ce) {
		ce.AppError.URL, ce.AppError.Line = sourceURL, line
	}
}

func stripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
