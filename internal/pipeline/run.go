package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/singsub/internal/config"
	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/source"
	"github.com/John-Robertt/singsub/internal/store"
	"github.com/John-Robertt/singsub/internal/sub"
)

type RunOptions struct {
	// Subs replaces the source list file when non-empty.
	Subs []string
	// Archive, when set, receives the records of the run.
	Archive Archiver
	Log     logrus.FieldLogger
}

func FetchOptions(s config.FetchSettings) fetch.Options {
	return fetch.Options{
		Timeout:      s.Timeout,
		MaxBytes:     s.MaxBytes,
		MaxRedirects: s.MaxRedirects,
		UserAgent:    s.UserAgent,
		Transport:    s.Transport,
	}
}

// RunFiles is the batch conversion: read the source list, convert, write
// the record list and the assembled config. A missing template falls back
// to the built-in one. Archive failures are logged, not returned.
func RunFiles(ctx context.Context, s *config.Settings, opt RunOptions) (*Result, error) {
	log := opt.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	urls := opt.Subs
	if len(urls) == 0 {
		var err error
		urls, err = source.ReadFile(s.Sources.File)
		if err != nil {
			log.WithError(err).WithField("file", s.Sources.File).Warn("source list unreadable")
		}
	}
	if len(urls) == 0 {
		log.WithField("file", s.Sources.File).Info("no subscription sources, nothing to do")
		return &Result{Report: &sub.Report{}}, nil
	}

	fo := FetchOptions(s.Fetch)
	prof, err := LoadProfile(ctx, s.Profile.Path, fo)
	if err != nil {
		return nil, err
	}

	doc, err := LoadTemplate(ctx, s.Template.Path, fo)
	if err != nil {
		log.WithFields(ErrorFields(err)).Warn("template unavailable, using built-in template")
	}
	if missing := doc.MissingSections(); len(missing) > 0 {
		log.WithField("sections", missing).Warn("template is missing sections")
	}

	res, err := Convert(ctx, urls, Options{Fetch: fo, Template: doc, Profile: prof, Log: log})
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		return res, nil
	}

	if err := store.WriteJSON(s.Output.Proxies, res.Report.Outbounds); err != nil {
		return res, err
	}
	if err := store.WriteJSON(s.Output.Config, res.Config); err != nil {
		return res, err
	}
	log.WithFields(logrus.Fields{
		"proxies": s.Output.Proxies,
		"config":  s.Output.Config,
	}).Info("outputs written")

	if opt.Archive != nil {
		if err := opt.Archive.SaveRun(ctx, res.RunID, res.Report.Outbounds); err != nil {
			log.WithFields(ErrorFields(err)).Warn("archive failed")
		}
	}
	return res, nil
}
