package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/singsub/internal/pipeline"
	"github.com/John-Robertt/singsub/internal/store"
)

func addConvertFlags(cmd *cobra.Command, subs *[]string) {
	f := cmd.Flags()
	f.StringArrayVar(subs, "sub", nil, "订阅 URL（可重复，指定后忽略订阅列表文件）")
	f.String("sources", "", "订阅列表文件")
	f.String("template", "", "配置模板路径或 http(s) URL")
	f.String("profile", "", "分组 profile 文件或 http(s) URL（默认内置）")
	f.String("output-proxies", "", "节点列表输出路径")
	f.String("output-config", "", "完整配置输出路径")
	f.Duration("fetch-timeout", 0, "单次远程拉取超时")
	f.String("transport", "", "拉取使用的传输配置，如 socks5://127.0.0.1:1080")
	f.String("dsn", "", "Postgres 归档 DSN（为空则不归档）")
}

func newConvertCmd(a *app) *cobra.Command {
	var subs []string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Fetch every subscription and write the node list and the assembled config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd, subs)
		},
	}
	addConvertFlags(cmd, &subs)
	return cmd
}

func (a *app) runConvert(cmd *cobra.Command, subs []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opt := pipeline.RunOptions{Subs: subs, Log: a.log}
	if dsn := a.settings.Database.DSN; dsn != "" {
		arch, err := openArchive(ctx, dsn)
		if err != nil {
			a.log.WithFields(pipeline.ErrorFields(err)).Warn("archive disabled")
		} else {
			defer arch.Close()
			opt.Archive = arch
		}
	}

	if _, err := pipeline.RunFiles(ctx, a.settings, opt); err != nil {
		a.log.WithFields(pipeline.ErrorFields(err)).Error("conversion failed")
		return err
	}
	return nil
}

func openArchive(ctx context.Context, dsn string) (*store.Archive, error) {
	arch := store.OpenArchive(dsn)
	if err := arch.InitSchema(ctx); err != nil {
		_ = arch.Close()
		return nil, err
	}
	return arch, nil
}
