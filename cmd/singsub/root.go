package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/John-Robertt/singsub/internal/config"
	"github.com/John-Robertt/singsub/internal/logging"
	"github.com/John-Robertt/singsub/internal/pipeline"
)

// app is the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	debug      bool

	settings *config.Settings
	log      *logrus.Logger
}

// flagKeys maps setting keys to the flags that may override them.
var flagKeys = map[string]string{
	"log.level":            "log-level",
	"log.format":           "log-format",
	"sources.file":         "sources",
	"template.path":        "template",
	"profile.path":         "profile",
	"output.proxies":       "output-proxies",
	"output.config":        "output-config",
	"fetch.timeout":        "fetch-timeout",
	"fetch.transport":      "transport",
	"database.dsn":         "dsn",
	"http.listen":          "listen",
	"http.convert_timeout": "convert-timeout",
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	var subs []string

	root := &cobra.Command{
		Use:           "singsub",
		Short:         "Convert proxy subscriptions into a sing-box outbound config",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd, subs)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "配置文件路径（默认搜索 ./singsub.yaml）")
	pf.BoolVarP(&a.debug, "debug", "d", false, "启用 debug 日志")
	pf.String("log-level", "", "日志级别：debug/info/warn/error")
	pf.String("log-format", "", "日志格式：text/json")

	addConvertFlags(root, &subs)
	root.AddCommand(newConvertCmd(a), newCheckCmd(a), newServeCmd(a), newHealthcheckCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags(), flagKeys); err != nil {
		return err
	}
	s, err := config.Load(a.v, a.configFile)
	if err != nil {
		// Logger settings are not known yet.
		a.log = logging.NewWithOutput(cmd.ErrOrStderr(), "info", "text")
		a.log.WithFields(pipeline.ErrorFields(err)).Error("configuration invalid")
		return err
	}
	a.settings = s
	level := s.Log.Level
	if a.debug {
		level = "debug"
	}
	a.log = logging.NewWithOutput(cmd.ErrOrStderr(), level, s.Log.Format)
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.WithField("file", used).Debug("config file loaded")
	}
	return nil
}
