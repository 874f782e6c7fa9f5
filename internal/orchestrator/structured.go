package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"llmd/pkg/types"
)

const (
	// structuredTemperature is the lower default for schema-constrained
	// queries, biasing toward determinism.
	structuredTemperature = 0.2
	// structuredInstruction is appended to the effective system prompt.
	structuredInstruction = "Respond with valid JSON only. No prose, no code fences, no explanations."
	// excerptLimit bounds the diagnostic excerpt attached to decode failures.
	excerptLimit = 200
)

// QueryStructured executes a schema-constrained query and decodes the
// response into out. The model is instructed to emit bare JSON; the raw
// response is cleaned (fences stripped, outer JSON span extracted) before a
// single decode attempt. Decode failures surface as ParsingFailed with the
// decoder's reason and a bounded excerpt of the cleaned text; no automatic
// retry is performed.
func (o *Orchestrator) QueryStructured(ctx context.Context, req types.QueryRequest, out any) (types.QueryResult, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}
	req.System = system + " " + structuredInstruction
	if req.Temperature <= 0 {
		req.Temperature = structuredTemperature
	}

	res, err := o.generate(ctx, req, nil)
	if err != nil {
		return types.QueryResult{}, err
	}
	if err := DecodeResponse(res.Response, out); err != nil {
		return types.QueryResult{}, err
	}
	return res, nil
}

// DecodeResponse cleans a raw model response and decodes the JSON span into
// out.
func DecodeResponse(raw string, out any) error {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return invalidResponseError{reason: "no JSON object or array in response"}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return parsingFailedError{reason: err.Error(), excerpt: excerpt(cleaned)}
	}
	return nil
}

// ExtractJSON performs the cleanup pass on a raw model response: trim
// whitespace, strip a leading fenced-code marker (with or without a language
// tag), strip a trailing fence, re-trim, then slice to the outer JSON span
// from the first '{' or '[' to the corresponding last '}' or ']'. Returns ""
// when no span exists.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		// Drop a language tag such as "json" up to the first newline.
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	s = strings.TrimSpace(s)

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')
	start, open := objStart, byte('{')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start, open = arrStart, '['
	}
	if start < 0 {
		return ""
	}
	var end int
	if open == '{' {
		end = strings.LastIndexByte(s, '}')
	} else {
		end = strings.LastIndexByte(s, ']')
	}
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func excerpt(s string) string {
	if len(s) > excerptLimit {
		return s[:excerptLimit]
	}
	return s
}
