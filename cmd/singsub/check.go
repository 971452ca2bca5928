package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/singsub/internal/pipeline"
	"github.com/John-Robertt/singsub/internal/profile"
	"github.com/John-Robertt/singsub/internal/source"
	"github.com/John-Robertt/singsub/internal/template"
)

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the template, the subscription list and the group profile without converting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd)
		},
	}
	f := cmd.Flags()
	f.String("sources", "", "订阅列表文件")
	f.String("template", "", "配置模板路径或 http(s) URL")
	f.String("profile", "", "分组 profile 文件（默认内置）")
	return cmd
}

type checker struct {
	out    io.Writer
	failed int
}

func (c *checker) ok(item, format string, args ...any) {
	fmt.Fprintf(c.out, "ok    %-8s %s\n", item, fmt.Sprintf(format, args...))
}

func (c *checker) fail(item string, err error) {
	c.failed++
	fmt.Fprintf(c.out, "FAIL  %-8s %v\n", item, err)
}

func (a *app) runCheck(cmd *cobra.Command) error {
	s := a.settings
	c := &checker{out: cmd.OutOrStdout()}

	fo := pipeline.FetchOptions(s.Fetch)
	prof, err := pipeline.LoadProfile(cmd.Context(), s.Profile.Path, fo)
	if err != nil {
		c.fail("profile", err)
		prof = profile.Default()
	} else {
		c.ok("profile", "%d regions, manual=%s auto=%s", len(prof.Regions), prof.Manual, prof.Auto)
	}

	doc, err := pipeline.LoadTemplate(cmd.Context(), s.Template.Path, fo)
	if err != nil {
		c.fail("template", err)
	} else {
		checkTemplate(c, doc, prof, s.Template.Path)
	}

	urls, err := source.ReadFile(s.Sources.File)
	switch {
	case err != nil:
		c.fail("sources", err)
	case len(urls) == 0:
		c.fail("sources", fmt.Errorf("%s: 没有任何订阅 URL", s.Sources.File))
	default:
		bad := lo.Reject(urls, func(u string, _ int) bool { return isHTTPURL(u) })
		if len(bad) > 0 {
			c.fail("sources", fmt.Errorf("非 http(s) URL：%s", strings.Join(lo.Map(bad, func(u string, _ int) string { return pipeline.RedactURL(u) }), ", ")))
		} else {
			c.ok("sources", "%s: %d subscriptions", s.Sources.File, len(urls))
		}
	}

	if c.failed > 0 {
		return fmt.Errorf("%d 项检查未通过", c.failed)
	}
	return nil
}

func checkTemplate(c *checker, doc *template.Document, prof *profile.Profile, location string) {
	if missing := doc.MissingSections(); len(missing) > 0 {
		c.fail("template", fmt.Errorf("%s: 缺少 %s", location, strings.Join(missing, ", ")))
		return
	}
	obs, err := doc.Outbounds()
	if err != nil {
		c.fail("template", err)
		return
	}
	tags := lo.Map(obs, func(o template.Object, _ int) string { return o.String("tag") })
	reserved := append([]string{prof.Manual, prof.Auto}, prof.RegionTags()...)
	if absent := lo.Without(reserved, tags...); len(absent) > 0 {
		c.fail("template", fmt.Errorf("%s: 缺少分组 %s", location, strings.Join(absent, ", ")))
		return
	}
	c.ok("template", "%s: %d outbounds", location, len(obs))
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
