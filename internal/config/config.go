// Package config loads runtime settings from an optional YAML file,
// SINGSUB_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/John-Robertt/singsub/internal/model"
)

const EnvPrefix = "SINGSUB"

type Settings struct {
	Sources  SourcesSettings  `mapstructure:"sources"`
	Template TemplateSettings `mapstructure:"template"`
	Profile  ProfileSettings  `mapstructure:"profile"`
	Output   OutputSettings   `mapstructure:"output"`
	Fetch    FetchSettings    `mapstructure:"fetch"`
	Log      LogSettings      `mapstructure:"log"`
	Database DatabaseSettings `mapstructure:"database"`
	HTTP     HTTPSettings     `mapstructure:"http"`
}

type SourcesSettings struct {
	File string `mapstructure:"file" validate:"required"`
}

type TemplateSettings struct {
	// Path is a file path or an http(s) URL.
	Path string `mapstructure:"path" validate:"required"`
}

type ProfileSettings struct {
	Path string `mapstructure:"path"` // empty: built-in profile
}

type OutputSettings struct {
	Proxies string `mapstructure:"proxies" validate:"required"`
	Config  string `mapstructure:"config" validate:"required"`
}

type FetchSettings struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent    string        `mapstructure:"user_agent" validate:"required"`
	MaxBytes     int64         `mapstructure:"max_bytes" validate:"gt=0"`
	MaxRedirects int           `mapstructure:"max_redirects" validate:"min=1,max=20"`
	Transport    string        `mapstructure:"transport"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type DatabaseSettings struct {
	DSN string `mapstructure:"dsn" validate:"omitempty,url"` // empty: archive disabled
}

type HTTPSettings struct {
	Listen         string        `mapstructure:"listen" validate:"required,hostname_port"`
	ConvertTimeout time.Duration `mapstructure:"convert_timeout" validate:"gt=0"`
}

type ConfigError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func configError(code, file, msg string, cause error) error {
	return &ConfigError{
		AppError: model.AppError{
			Code:    code,
			Message: msg,
			Stage:   "config",
			URL:     file,
		},
		Cause: cause,
	}
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources.file", "url.yaml")
	v.SetDefault("template.path", "config.json")
	v.SetDefault("profile.path", "")
	v.SetDefault("output.proxies", "sing-box.json")
	v.SetDefault("output.config", "sing-box_config.json")
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("fetch.max_bytes", int64(5*1024*1024))
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.transport", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.dsn", "")
	v.SetDefault("http.listen", "127.0.0.1:25500")
	v.SetDefault("http.convert_timeout", 60*time.Second)
}

// BindFlags maps command-line flags onto setting keys. Flags that are not
// present in fs are ignored.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configFile (or singsub.yaml from the search path when empty),
// then decodes and validates the merged settings. A missing file is only
// an error when configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("singsub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.singsub")
		v.AddConfigPath("/etc/singsub")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, configError("CONFIG_READ_ERROR", configFile, "读取配置文件失败", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the current state of v.
func Decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, configError("CONFIG_PARSE_ERROR", v.ConfigFileUsed(), "配置解析失败", err)
	}
	if err := model.Validator.Struct(s); err != nil {
		return nil, configError("CONFIG_VALIDATE_ERROR", v.ConfigFileUsed(), "配置校验失败", err)
	}
	return &s, nil
}
