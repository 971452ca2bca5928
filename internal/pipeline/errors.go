package pipeline

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/singsub/internal/assemble"
	"github.com/John-Robertt/singsub/internal/config"
	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/profile"
	"github.com/John-Robertt/singsub/internal/store"
	"github.com/John-Robertt/singsub/internal/sub/clash"
	"github.com/John-Robertt/singsub/internal/sub/link"
	"github.com/John-Robertt/singsub/internal/template"
)

// AppErrorOf extracts the AppError carried by any stage error in err's chain.
func AppErrorOf(err error) (model.AppError, bool) {
	var (
		fe  *fetch.FetchError
		pe  *link.ParseError
		ce  *clash.ConvertError
		ppe *profile.ParseError
		te  *template.TemplateError
		ae  *assemble.AssembleError
		se  *store.StoreError
		cfe *config.ConfigError
	)
	switch {
	case errors.As(err, &fe):
		return fe.AppError, true
	case errors.As(err, &pe):
		return pe.AppError, true
	case errors.As(err, &ce):
		return ce.AppError, true
	case errors.As(err, &ppe):
		return ppe.AppError, true
	case errors.As(err, &te):
		return te.AppError, true
	case errors.As(err, &ae):
		return ae.AppError, true
	case errors.As(err, &se):
		return se.AppError, true
	case errors.As(err, &cfe):
		return cfe.AppError, true
	}
	return model.AppError{}, false
}

// ErrorFields flattens err into log fields. URLs are redacted.
func ErrorFields(err error) logrus.Fields {
	f := logrus.Fields{}
	if err == nil {
		return f
	}
	app, ok := AppErrorOf(err)
	if !ok {
		f["error"] = err.Error()
		return f
	}
	f["code"] = app.Code
	f["stage"] = app.Stage
	f["error"] = err.Error()
	if app.URL != "" {
		f["url"] = RedactURL(app.URL)
	}
	if app.Line > 0 {
		f["line"] = app.Line
	}
	if app.Hint != "" {
		f["hint"] = app.Hint
	}
	return f
}
