// Package pipeline runs one conversion: fetch every source in order, parse
// the bodies into records and merge them into the config template.
package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/singsub/internal/assemble"
	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/profile"
	"github.com/John-Robertt/singsub/internal/sub"
	"github.com/John-Robertt/singsub/internal/template"
)

// Archiver stores the records of a run; see store.Archive.
type Archiver interface {
	SaveRun(ctx context.Context, runID string, outbounds []model.Outbound) error
}

type Options struct {
	Fetch fetch.Options
	// Template defaults to template.Default().
	Template *template.Document
	// Profile defaults to profile.Default().
	Profile *profile.Profile
	Log     logrus.FieldLogger
}

type Result struct {
	RunID string
	// Report merges the per-source reports in source order.
	Report *sub.Report
	// Config is nil when no record was produced.
	Config *template.Document

	Sources       int
	FailedSources int
}

func (r *Result) Empty() bool { return r == nil || len(r.Report.Outbounds) == 0 }

// Convert never fails because of a single source: unreachable sources are
// logged and contribute no records. An empty source list or a run without
// records returns a Result with a nil Config.
func Convert(ctx context.Context, urls []string, opt Options) (*Result, error) {
	log := opt.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	res := &Result{
		RunID:   uuid.NewString(),
		Report:  &sub.Report{},
		Sources: len(urls),
	}
	log = log.WithField("run_id", res.RunID)

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := fetch.FetchTextWithOptions(ctx, fetch.KindSubscription, u, opt.Fetch)
		if err != nil {
			res.FailedSources++
			log.WithFields(ErrorFields(err)).WithField("url", RedactURL(u)).Warn("subscription unavailable, skipped")
			continue
		}
		rep := ParseSource(log, u, text)
		res.Report.Merge(rep)
	}

	if len(res.Report.Unsupported) > 0 {
		log.WithField("schemes", strings.Join(res.Report.Unsupported, ",")).Info("unsupported protocols skipped")
	}
	if len(res.Report.Outbounds) == 0 {
		log.WithField("sources", res.Sources).Info("no records parsed, nothing to assemble")
		return res, nil
	}

	doc := opt.Template
	if doc == nil {
		doc = template.Default()
	}
	cfg, err := assemble.Assemble(doc, res.Report.Outbounds, assemble.Options{
		Profile: opt.Profile,
		OnDrop: func(tag, typ string) {
			log.WithFields(logrus.Fields{"tag": tag, "type": typ}).Debug("template outbound dropped")
		},
	})
	if err != nil {
		return nil, err
	}
	res.Config = cfg
	log.WithFields(logrus.Fields{
		"records": len(res.Report.Outbounds),
		"sources": res.Sources,
		"failed":  res.FailedSources,
	}).Info("conversion finished")
	return res, nil
}

// ParseSource parses one fetched body and logs why lines were skipped.
func ParseSource(log logrus.FieldLogger, sourceURL, text string) *sub.Report {
	rep := sub.ParseSubscriptionText(sourceURL, text)
	slog := log.WithField("url", RedactURL(sourceURL))
	for _, s := range rep.Skips {
		entry := slog.WithFields(logrus.Fields{"line": s.Line, "scheme": s.Scheme, "reason": string(s.Reason)})
		if s.Err != nil {
			entry = entry.WithFields(ErrorFields(s.Err))
		}
		entry.Debug("line skipped")
	}
	slog.WithFields(logrus.Fields{"format": string(rep.Format), "records": len(rep.Outbounds)}).Info("subscription parsed")
	return rep
}

// LoadTemplate reads a template from a file path or an http(s) URL. When
// that fails it returns the built-in template together with the error, so
// callers can warn and continue.
func LoadTemplate(ctx context.Context, location string, fo fetch.Options) (*template.Document, error) {
	var (
		text []byte
		err  error
	)
	if isHTTP(location) {
		var s string
		s, err = fetch.FetchTextWithOptions(ctx, fetch.KindTemplate, location, fo)
		text = []byte(s)
	} else {
		text, err = os.ReadFile(location)
		if err != nil {
			err = template.ReadError(location, err)
		}
	}
	if err != nil {
		return template.Default(), err
	}
	doc, err := template.Load(location, text)
	if err != nil {
		return template.Default(), err
	}
	return doc, nil
}

// LoadProfile reads a group profile from a file path or an http(s) URL. An
// empty location selects the built-in profile. There is no fallback for a
// broken profile.
func LoadProfile(ctx context.Context, location string, fo fetch.Options) (*profile.Profile, error) {
	if !isHTTP(location) {
		return profile.Load(location)
	}
	text, err := fetch.FetchTextWithOptions(ctx, fetch.KindProfile, location, fo)
	if err != nil {
		return nil, err
	}
	return profile.ParseProfileYAML(location, text)
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// RedactURL drops the query string, which usually carries an access token.
func RedactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?…"
	}
	return u
}
