package runtime

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/template"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

func (e *Executor) actionHTTPRequest(ctx context.Context, st *schema.Step) Outcome {
	url := strings.TrimSpace(e.resolve(firstField(st, "value", "url")))
	if url == "" {
		return Stop("URL is required for http_request")
	}

	// An options_json blob supplies defaults; inline step fields win.
	merged := make(map[string]any)
	if opts, ok := firstRawField(st.Fields, "options_json", "options"); ok {
		for k, v := range e.parseJSONMap(opts) {
			merged[k] = v
		}
	}
	for k, v := range st.Fields {
		if v != nil {
			merged[k] = v
		}
	}

	method := "GET"
	if raw, ok := firstRawField(merged, "method", "http_method"); ok {
		if m := strings.ToUpper(strings.TrimSpace(e.resolve(vars.Stringify(raw)))); m != "" {
			method = m
		}
	}

	req := driver.HTTPRequest{Method: method, URL: url}
	if raw, ok := firstRawField(merged, "headers"); ok {
		req.Headers = e.resolveStringMap(raw)
	}
	if raw, ok := firstRawField(merged, "params", "query", "query_params"); ok {
		req.Params = e.resolveStringMap(raw)
	}
	if raw, ok := firstRawField(merged, "form"); ok {
		req.Form = e.resolveStringMap(raw)
	}
	if raw, ok := firstRawField(merged, "multipart"); ok {
		if m := e.parseJSONMap(raw); m != nil {
			req.Multipart, _ = template.ResolveValue(m, e.profile).(map[string]any)
		}
	}
	if raw, ok := firstRawField(merged, "data", "json", "body"); ok {
		req.Body = e.renderBody(raw)
	}
	if ms, ok := floatValue(merged["timeout_ms"]); ok && ms > 0 {
		req.Timeout = time.Duration(ms * float64(time.Millisecond))
	}

	resp, err := e.drv.HTTP(ctx, req)
	if err != nil {
		return stopDriver("http_request", err)
	}

	headersJSON, _ := json.Marshal(resp.Headers)
	jsonText := ""
	if resp.JSON != nil {
		if data, err := json.Marshal(resp.JSON); err == nil {
			jsonText = string(data)
		}
	}

	saveAs := "http"
	if raw, ok := firstRawField(merged, "save_as", "result_prefix", "prefix", "var_prefix"); ok {
		saveAs = vars.Stringify(raw)
	}
	saveAs = strings.TrimSpace(e.resolve(saveAs))
	if saveAs != "" {
		e.profile.Set(saveAs+"_url", url)
		e.profile.Set(saveAs+"_status", vars.Stringify(float64(resp.Status)))
		e.profile.Set(saveAs+"_ok", boolWord(resp.OK()))
		e.profile.Set(saveAs+"_headers", string(headersJSON))
		e.profile.Set(saveAs+"_body", resp.Body)
		e.profile.Set(saveAs+"_json", jsonText)
	}

	if raw, ok := firstRawField(merged, "response_var", "to_var"); ok {
		if name := strings.TrimSpace(e.resolve(vars.Stringify(raw))); name != "" {
			payload := map[string]any{
				"url":     url,
				"status":  resp.Status,
				"ok":      resp.OK(),
				"headers": resp.Headers,
				"body":    resp.Body,
			}
			if resp.JSON != nil {
				payload["json"] = resp.JSON
			}
			if data, err := json.Marshal(payload); err == nil {
				e.profile.Set(name, string(data))
			}
		}
	}

	if raw, ok := firstRawField(merged, "extract_json", "json_extract"); ok {
		if paths := e.parseJSONMap(raw); paths != nil && jsonText != "" {
			e.extractJSONPaths(jsonText, paths)
		}
	}

	if truthy(merged["require_success"]) && !resp.OK() {
		return Stopf("http_request failed with status %d", resp.Status)
	}

	if err := e.profile.Persist(); err != nil {
		e.log.Debug().Err(err).Msg("profile vars persist failed")
	}
	e.log.Info().Str("method", method).Str("url", url).Int("status", resp.Status).Msg("http request")
	return Next()
}

// renderBody flattens the request payload: strings are template-resolved
// as-is, structured values are resolved recursively and re-encoded as JSON.
func (e *Executor) renderBody(raw any) string {
	switch v := raw.(type) {
	case string:
		return e.resolve(v)
	default:
		resolved := template.ResolveValue(v, e.profile)
		data, err := json.Marshal(resolved)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// extractJSONPaths evaluates each configured path against the response JSON
// and stores the result. Paths use dot notation with [i] indexes; missing
// paths resolve to "".
func (e *Executor) extractJSONPaths(jsonText string, paths map[string]any) {
	for name, rawPath := range paths {
		if name == "" {
			continue
		}
		path := strings.TrimSpace(e.resolve(vars.Stringify(rawPath)))
		res := gjson.Get(jsonText, normalizeJSONPath(path))
		switch {
		case !res.Exists():
			e.profile.Set(name, "")
		case res.IsObject() || res.IsArray():
			e.profile.Set(name, res.Raw)
		default:
			e.profile.Set(name, res.String())
		}
	}
}

// normalizeJSONPath converts "$.a.b[0].c" style paths to gjson's "a.b.0.c".
func normalizeJSONPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.Trim(path, ".")
}

func floatValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "0", "no", "off":
			return false
		}
		return true
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

func boolWord(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
