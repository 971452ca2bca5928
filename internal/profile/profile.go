// Package profile loads the group profile: which template outbound tags are
// rebuilt from the node list and which are left alone.
package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/region"
)

//go:embed default.yaml
var defaultYAML string

type Profile struct {
	Version int

	// Manual and Auto receive the full node list.
	Manual string
	Auto   string
	// Regions receive their bucket, or the full list when the bucket is empty.
	Regions []region.Region
	// Passthrough selectors are kept unchanged.
	Passthrough []string
	// SystemTypes are outbound types that are never rebuilt or dropped.
	SystemTypes []string
}

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

type rawRegion struct {
	Tag      string   `yaml:"tag" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

type rawProfile struct {
	Version     int         `yaml:"version" validate:"eq=1"`
	Manual      string      `yaml:"manual" validate:"required"`
	Auto        string      `yaml:"auto" validate:"required"`
	Regions     []rawRegion `yaml:"regions" validate:"dive"`
	Passthrough []string    `yaml:"passthrough" validate:"dive,required"`
	SystemTypes []string    `yaml:"system_types" validate:"required,min=1,dive,required"`
}

// ParseProfileYAML parses and validates a group profile document. Unknown
// keys and multi-document input are rejected.
func ParseProfileYAML(sourceURL string, content string) (*Profile, error) {
	var rp rawProfile
	if err := yamlDecodeStrict(content, &rp); err != nil {
		return nil, newParseError(sourceURL, content, "PROFILE_PARSE_ERROR", "profile YAML 解析失败", err)
	}
	if err := model.Validator.Struct(rp); err != nil {
		return nil, newParseError(sourceURL, "", "PROFILE_VALIDATE_ERROR", "profile 字段校验失败", err)
	}

	seen := map[string]bool{}
	reserved := []string{rp.Manual, rp.Auto}
	for _, r := range rp.Regions {
		reserved = append(reserved, r.Tag)
	}
	reserved = append(reserved, rp.Passthrough...)
	for _, tag := range reserved {
		if seen[tag] {
			return nil, newParseError(sourceURL, "", "PROFILE_VALIDATE_ERROR", "保留标签重复", fmt.Errorf("duplicate tag %q", tag))
		}
		seen[tag] = true
	}

	p := &Profile{
		Version:     rp.Version,
		Manual:      rp.Manual,
		Auto:        rp.Auto,
		Passthrough: rp.Passthrough,
		SystemTypes: rp.SystemTypes,
	}
	for _, r := range rp.Regions {
		p.Regions = append(p.Regions, region.Region{Tag: r.Tag, Keywords: r.Keywords})
	}
	return p, nil
}

// Default returns the built-in profile.
func Default() *Profile {
	p, err := ParseProfileYAML("embedded:default.yaml", defaultYAML)
	if err != nil {
		panic(err)
	}
	return p
}

// Load reads a profile file. An empty path selects the built-in profile.
func Load(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, newParseError(path, "", "PROFILE_READ_ERROR", "读取 profile 失败", err)
	}
	return ParseProfileYAML(path, string(b))
}

// RegionTags lists the region tags in profile order.
func (p *Profile) RegionTags() []string {
	out := make([]string, 0, len(p.Regions))
	for _, r := range p.Regions {
		out = append(out, r.Tag)
	}
	return out
}

func (p *Profile) Classifier() *region.KeywordClassifier {
	return region.NewKeywordClassifier(p.Regions)
}

func yamlDecodeStrict(content string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func newParseError(sourceURL, content, code, message string, cause error) error {
	snippet := strings.ReplaceAll(content, "\n", "")
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_profile",
			URL:     sourceURL,
			Snippet: snippet,
		},
		Cause: cause,
	}
}
