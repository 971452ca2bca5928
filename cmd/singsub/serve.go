package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/singsub/internal/httpapi"
	"github.com/John-Robertt/singsub/internal/pipeline"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		readHeaderTimeout time.Duration
		shutdownTimeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, readHeaderTimeout, shutdownTimeout)
		},
	}
	f := cmd.Flags()
	f.String("listen", "", "HTTP 监听地址")
	f.Duration("convert-timeout", 0, "单次转换的总超时（包含远程拉取）")
	f.String("template", "", "配置模板路径或 http(s) URL")
	f.String("profile", "", "分组 profile 文件或 http(s) URL（默认内置）")
	f.DurationVar(&readHeaderTimeout, "read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	f.DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, readHeaderTimeout, shutdownTimeout time.Duration) error {
	s := a.settings
	prof, err := pipeline.LoadProfile(cmd.Context(), s.Profile.Path, pipeline.FetchOptions(s.Fetch))
	if err != nil {
		a.log.WithFields(pipeline.ErrorFields(err)).Error("profile invalid")
		return err
	}

	srv := &http.Server{
		Addr: s.HTTP.Listen,
		Handler: httpapi.NewHandlerWithOptions(httpapi.Options{
			ConvertTimeout: s.HTTP.ConvertTimeout,
			Fetch:          pipeline.FetchOptions(s.Fetch),
			Template:       s.Template.Path,
			Profile:        prof,
			Log:            a.log,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	a.log.Infof("listening on http://%s", s.HTTP.Listen)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			a.log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("http server failed")
			return err
		}
	}
	return nil
}
