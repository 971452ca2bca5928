// Package assemble merges node records into a routing config template.
//
// Template outbounds fall into three groups. Entries whose type is a system
// type (direct, block, dns) are kept as-is and moved to the end. Reserved
// groups (manual, auto and region tags) get their member list rebuilt from
// the records. Selectors on the pass-through list are kept unchanged.
// Every other template outbound is dropped, including stale node entries
// from a previous run, which is what makes re-assembly idempotent.
package assemble

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/profile"
	"github.com/John-Robertt/singsub/internal/region"
	"github.com/John-Robertt/singsub/internal/template"
)

type Options struct {
	// Profile defaults to profile.Default().
	Profile *profile.Profile
	// Classifier defaults to the profile's keyword classifier.
	Classifier region.Classifier
	// OnDrop, when set, is called for every template outbound removed.
	OnDrop func(tag, typ string)
}

type AssembleError struct {
	AppError model.AppError
	Cause    error
}

func (e *AssembleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *AssembleError) Unwrap() error { return e.Cause }

func assembleError(msg string, cause error) error {
	return &AssembleError{
		AppError: model.AppError{
			Code:    "ASSEMBLE_ERROR",
			Message: msg,
			Stage:   "assemble",
		},
		Cause: cause,
	}
}

// Assemble returns a new document; doc itself is not modified. Only the
// "outbounds" member changes.
func Assemble(doc *template.Document, outbounds []model.Outbound, opt Options) (*template.Document, error) {
	if doc == nil {
		return nil, assembleError("配置模板不能为空", nil)
	}
	prof := opt.Profile
	if prof == nil {
		prof = profile.Default()
	}
	classifier := opt.Classifier
	if classifier == nil {
		classifier = prof.Classifier()
	}

	existing, err := doc.Outbounds()
	if err != nil {
		return nil, assembleError("模板 outbounds 解析失败", err)
	}

	tags := lo.Map(outbounds, func(o model.Outbound, _ int) string { return o.Tag })
	buckets := region.Buckets(classifier, prof.RegionTags(), tags)

	var groups, system []any
	for _, ob := range existing {
		typ, tag := ob.String("type"), ob.String("tag")
		if lo.Contains(prof.SystemTypes, typ) {
			system = append(system, ob)
			continue
		}

		var members []string
		switch bucket, isRegion := buckets[tag]; {
		case tag == prof.Manual || tag == prof.Auto:
			members = tags
		case isRegion:
			members = bucket
			if len(members) == 0 {
				members = tags
			}
		case typ == "selector" && lo.Contains(prof.Passthrough, tag):
			groups = append(groups, ob)
			continue
		default:
			if opt.OnDrop != nil {
				opt.OnDrop(tag, typ)
			}
			continue
		}

		rebuilt := ob.Clone()
		if err := rebuilt.Set("outbounds", members); err != nil {
			return nil, assembleError(fmt.Sprintf("重建分组 %s 失败", tag), err)
		}
		groups = append(groups, rebuilt)
	}

	items := make([]any, 0, len(groups)+len(outbounds)+len(system))
	items = append(items, groups...)
	for _, o := range outbounds {
		items = append(items, o)
	}
	items = append(items, system...)

	out := doc.Clone()
	if err := out.SetOutbounds(items); err != nil {
		return nil, assembleError("写入 outbounds 失败", err)
	}
	return out, nil
}
