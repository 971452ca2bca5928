package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/pipeline"
	"github.com/John-Robertt/singsub/internal/store"
	"github.com/John-Robertt/singsub/internal/template"
)

const (
	outputConfig  = "config"
	outputProxies = "proxies"
)

const maxRequestBody = 1 << 20

type convertRequest struct {
	Subs     []string
	Output   string // "config" | "proxies"
	FileName string
}

type convertRequestJSON struct {
	Subs     []string `json:"subs"`
	Output   string   `json:"output"`
	FileName string   `json:"fileName"`
}

type convertHandler struct {
	opt Options
}

func (h convertHandler) handleSub(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertGET(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	h.serve(w, r, req)
}

func (h convertHandler) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	req, err := parseConvertPOST(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	h.serve(w, r, req)
}

func (h convertHandler) serve(w http.ResponseWriter, r *http.Request, req convertRequest) {
	body, err := h.runConvert(r.Context(), req)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := setAttachmentHeaders(w, req); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, body)
}

func (h convertHandler) runConvert(ctx context.Context, req convertRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opt.ConvertTimeout)
	defer cancel()

	doc := template.Default()
	if h.opt.Template != "" && req.Output == outputConfig {
		var err error
		doc, err = pipeline.LoadTemplate(ctx, h.opt.Template, h.opt.Fetch)
		if err != nil {
			h.opt.Log.WithFields(pipeline.ErrorFields(err)).Warn("template unavailable, using built-in template")
		}
	}

	res, err := pipeline.Convert(ctx, req.Subs, pipeline.Options{
		Fetch:    h.opt.Fetch,
		Template: doc,
		Profile:  h.opt.Profile,
		Log:      h.opt.Log,
	})
	if err != nil {
		return nil, err
	}
	metricsAddConversion(len(res.Report.Outbounds), len(res.Report.Unsupported))

	if res.Empty() {
		if res.FailedSources == res.Sources {
			return nil, apiError(http.StatusBadGateway, model.AppError{
				Code:    "SUB_UNAVAILABLE",
				Message: "所有订阅均拉取失败",
				Stage:   "fetch_sub",
			}, nil)
		}
		return nil, apiError(http.StatusUnprocessableEntity, model.AppError{
			Code:    "SUB_EMPTY",
			Message: "订阅中没有任何可用节点",
			Stage:   "parse_sub",
			Hint:    unsupportedHint(res.Report.Unsupported),
		}, nil)
	}

	if req.Output == outputProxies {
		return store.EncodeJSON(res.Report.Outbounds)
	}
	return store.EncodeJSON(res.Config)
}

func unsupportedHint(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "unsupported: " + strings.Join(names, ",")
}

func parseConvertGET(r *http.Request) (convertRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "sub", "output", "fileName":
		default:
			return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}

	subs, err := cleanSubs(q["sub"])
	if err != nil {
		return convertRequest{}, err
	}
	output, err := singleQuery(q, "output", false)
	if err != nil {
		return convertRequest{}, err
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return convertRequest{}, err
	}
	return newConvertRequest(subs, output, fileName)
}

func parseConvertPOST(r *http.Request) (convertRequest, error) {
	var body convertRequestJSON
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}

	subs, err := cleanSubs(body.Subs)
	if err != nil {
		return convertRequest{}, err
	}
	return newConvertRequest(subs, body.Output, body.FileName)
}

func newConvertRequest(subs []string, output, fileName string) (convertRequest, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		output = outputConfig
	}
	if output != outputConfig && output != outputProxies {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "不支持的 output（仅支持 config/proxies）", output)
	}
	req := convertRequest{Subs: subs, Output: output, FileName: fileName}
	if _, err := outputFileName(req); err != nil {
		return convertRequest{}, err
	}
	return req, nil
}

// cleanSubs trims and validates subscription URLs and drops repeats, keeping
// first-seen order.
func cleanSubs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, requestError("INVALID_ARGUMENT", "缺少 sub 参数", "expected: sub=<url>")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, requestError("INVALID_ARGUMENT", "sub 不能为空", "")
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, requestError("INVALID_ARGUMENT", "sub 仅允许 http/https URL", pipeline.RedactURL(s))
		}
		out = append(out, s)
	}
	return lo.Uniq(out), nil
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}
