// Package normalize turns a raw completion body into a typed reading.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/sells-group/lifeline/internal/model"
)

// DefaultScore is used for any dimension score the model omitted.
const DefaultScore = 5

// Narrative defaults for fields the model omitted.
const (
	DefaultSummary     = "无摘要"
	DefaultPersonality = "无性格分析"
	DefaultNone        = "无"
	DefaultFengShui    = "建议多亲近自然，保持心境平和。"
	DefaultCrypto      = "暂无交易分析"
	DefaultCryptoYear  = "待定"
	DefaultCryptoStyle = "现货定投"
)

const payloadSchemaURL = "reading.schema.json"

// payloadSchema requires an object with a non-empty chartPoints array of
// objects. Narrative fields are optional and defaulted after validation.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["chartPoints"],
  "properties": {
    "chartPoints": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "object"}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(payloadSchemaURL, strings.NewReader(payloadSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(payloadSchemaURL)
	})
	return schema, schemaErr
}

// ExtractContent returns the first choice's message text from a chat
// completion response body.
func ExtractContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", newError(KindInvalidAPIResponse, "upstream returned a non-JSON body", nil)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", newError(KindEmptyModelResponse, "model returned no content", nil)
	}
	return content.String(), nil
}

// Normalize parses model text into a result. Only a missing or malformed
// chartPoints array is an error; every other field is defaulted.
func Normalize(text string) (*model.NormalizedResult, error) {
	text = Strip(text)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, newError(KindInvalidJSONFormat, "model reply is not valid JSON", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, newError(KindInvalidModelJSON, "reading schema unavailable", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, newError(KindInvalidModelJSON, "model reply is missing a chartPoints array", err)
	}

	root := gjson.Parse(text)
	res := &model.NormalizedResult{
		ChartData: chartPoints(root.Get("chartPoints")),
		Analysis: model.Analysis{
			Bazi:             stringList(root.Get("bazi")),
			Summary:          field(root, "summary", DefaultSummary),
			SummaryScore:     score(root.Get("summaryScore")),
			Personality:      field(root, "personality", DefaultPersonality),
			PersonalityScore: score(root.Get("personalityScore")),
			Industry:         field(root, "industry", DefaultNone),
			IndustryScore:    score(root.Get("industryScore")),
			FengShui:         field(root, "fengShui", DefaultFengShui),
			FengShuiScore:    score(root.Get("fengShuiScore")),
			Wealth:           field(root, "wealth", DefaultNone),
			WealthScore:      score(root.Get("wealthScore")),
			Marriage:         field(root, "marriage", DefaultNone),
			MarriageScore:    score(root.Get("marriageScore")),
			Health:           field(root, "health", DefaultNone),
			HealthScore:      score(root.Get("healthScore")),
			Family:           field(root, "family", DefaultNone),
			FamilyScore:      score(root.Get("familyScore")),
			Crypto:           field(root, "crypto", DefaultCrypto),
			CryptoScore:      score(root.Get("cryptoScore")),
			CryptoYear:       field(root, "cryptoYear", DefaultCryptoYear),
			CryptoStyle:      field(root, "cryptoStyle", DefaultCryptoStyle),
		},
	}
	return res, nil
}

func chartPoints(arr gjson.Result) []model.ChartPoint {
	items := arr.Array()
	out := make([]model.ChartPoint, 0, len(items))
	for _, it := range items {
		out = append(out, model.ChartPoint{
			Age:    int(number(it.Get("age"))),
			Year:   int(number(it.Get("year"))),
			DaYun:  strings.TrimSpace(it.Get("daYun").String()),
			GanZhi: strings.TrimSpace(it.Get("ganZhi").String()),
			Open:   number(it.Get("open")),
			Close:  number(it.Get("close")),
			High:   number(it.Get("high")),
			Low:    number(it.Get("low")),
			Score:  number(it.Get("score")),
			Reason: it.Get("reason").String(),
		})
	}
	return out
}

func field(root gjson.Result, path, def string) string {
	v := root.Get(path)
	if v.Type != gjson.String && v.Type != gjson.Number {
		return def
	}
	if s := strings.TrimSpace(v.String()); s != "" {
		return s
	}
	return def
}

func stringList(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	for _, it := range v.Array() {
		if s := strings.TrimSpace(it.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// score reads a 0-10 dimension score, accepting numeric strings. Missing,
// non-numeric and zero values take DefaultScore; others are rounded and
// clamped.
func score(v gjson.Result) int {
	f, ok := numeric(v)
	if !ok || f == 0 {
		return DefaultScore
	}
	n := int(math.Round(f))
	switch {
	case n < 0:
		return 0
	case n > 10:
		return 10
	}
	return n
}

func number(v gjson.Result) float64 {
	f, _ := numeric(v)
	return f
}

func numeric(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
