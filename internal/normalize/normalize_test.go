package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReply = `{
  "bazi": ["庚午", "戊寅", "甲子", "丙寅"],
  "summary": "总评", "summaryScore": 8,
  "personality": "性格", "personalityScore": 7,
  "industry": "事业", "industryScore": 6,
  "fengShui": "风水", "fengShuiScore": 9,
  "wealth": "财富", "wealthScore": 4,
  "marriage": "婚姻", "marriageScore": 3,
  "health": "健康", "healthScore": 2,
  "family": "六亲", "familyScore": 1,
  "crypto": "交易", "cryptoScore": 10,
  "cryptoYear": "2025年 (乙巳)", "cryptoStyle": "高倍合约",
  "chartPoints": [
    {"age": 1, "year": 1990, "daYun": "童限", "ganZhi": "庚午", "open": 50, "close": 55, "high": 60, "low": 45, "score": 55, "reason": "平稳"},
    {"age": 2, "year": 1991, "daYun": "童限", "ganZhi": "辛未", "open": 55, "close": 40, "high": 58, "low": 38, "score": 40, "reason": "波折"}
  ]
}`

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var ne *Error
	require.True(t, errors.As(err, &ne), "expected *normalize.Error, got %T", err)
	return ne.Kind
}

func TestExtractContent(t *testing.T) {
	t.Parallel()

	got, err := ExtractContent([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"a\":1}"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestExtractContent_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"html body", "<html>502 Bad Gateway</html>", KindInvalidAPIResponse},
		{"truncated json", `{"choices":[`, KindInvalidAPIResponse},
		{"empty body", "", KindInvalidAPIResponse},
		{"no choices", `{"id":"x"}`, KindEmptyModelResponse},
		{"empty choices", `{"choices":[]}`, KindEmptyModelResponse},
		{"blank content", `{"choices":[{"message":{"content":"   "}}]}`, KindEmptyModelResponse},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, KindEmptyModelResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ExtractContent([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.want, kindOf(t, err))
		})
	}
}

func TestNormalize_Full(t *testing.T) {
	t.Parallel()

	res, err := Normalize(fullReply)
	require.NoError(t, err)

	require.Len(t, res.ChartData, 2)
	p := res.ChartData[1]
	assert.Equal(t, 2, p.Age)
	assert.Equal(t, 1991, p.Year)
	assert.Equal(t, "童限", p.DaYun)
	assert.Equal(t, "辛未", p.GanZhi)
	assert.InDelta(t, 55, p.Open, 1e-9)
	assert.InDelta(t, 40, p.Close, 1e-9)
	assert.InDelta(t, 58, p.High, 1e-9)
	assert.InDelta(t, 38, p.Low, 1e-9)
	assert.Equal(t, "波折", p.Reason)

	a := res.Analysis
	assert.Equal(t, []string{"庚午", "戊寅", "甲子", "丙寅"}, a.Bazi)
	assert.Equal(t, "总评", a.Summary)
	assert.Equal(t, 8, a.SummaryScore)
	assert.Equal(t, 1, a.FamilyScore)
	assert.Equal(t, 10, a.CryptoScore)
	assert.Equal(t, "高倍合约", a.CryptoStyle)
}

func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()

	res, err := Normalize(`{"chartPoints":[{"age":1}]}`)
	require.NoError(t, err)

	a := res.Analysis
	assert.Equal(t, []string{}, a.Bazi)
	assert.Equal(t, DefaultSummary, a.Summary)
	assert.Equal(t, DefaultPersonality, a.Personality)
	assert.Equal(t, DefaultNone, a.Industry)
	assert.Equal(t, DefaultFengShui, a.FengShui)
	assert.Equal(t, DefaultNone, a.Wealth)
	assert.Equal(t, DefaultNone, a.Marriage)
	assert.Equal(t, DefaultNone, a.Health)
	assert.Equal(t, DefaultNone, a.Family)
	assert.Equal(t, DefaultCrypto, a.Crypto)
	assert.Equal(t, DefaultCryptoYear, a.CryptoYear)
	assert.Equal(t, DefaultCryptoStyle, a.CryptoStyle)
	for _, s := range []int{a.SummaryScore, a.PersonalityScore, a.IndustryScore, a.FengShuiScore,
		a.WealthScore, a.MarriageScore, a.HealthScore, a.FamilyScore, a.CryptoScore} {
		assert.Equal(t, DefaultScore, s)
	}
}

func TestNormalize_LenientValues(t *testing.T) {
	t.Parallel()

	res, err := Normalize(`{
		"summary": "  ", "summaryScore": "7",
		"personality": null, "personalityScore": 12.4,
		"industry": {"x": 1}, "industryScore": -3,
		"wealthScore": "high", "healthScore": 6.6,
		"chartPoints": [{"age": "3", "open": "50.5", "daYun": " 戊申 "}]
	}`)
	require.NoError(t, err)

	a := res.Analysis
	assert.Equal(t, DefaultSummary, a.Summary)
	assert.Equal(t, 7, a.SummaryScore)
	assert.Equal(t, DefaultPersonality, a.Personality)
	assert.Equal(t, 10, a.PersonalityScore)
	assert.Equal(t, DefaultNone, a.Industry)
	assert.Equal(t, 0, a.IndustryScore)
	assert.Equal(t, DefaultScore, a.WealthScore)
	assert.Equal(t, 7, a.HealthScore)

	require.Len(t, res.ChartData, 1)
	assert.Equal(t, 3, res.ChartData[0].Age)
	assert.InDelta(t, 50.5, res.ChartData[0].Open, 1e-9)
	assert.Equal(t, "戊申", res.ChartData[0].DaYun)
}

func TestNormalize_StrippingIsTransparent(t *testing.T) {
	t.Parallel()

	plain, err := Normalize(fullReply)
	require.NoError(t, err)

	wrappings := []string{
		"```json\n" + fullReply + "\n```",
		"```\n" + fullReply + "\n```",
		"<think>let me consider the chart {not json}</think>\n" + fullReply,
		"<think>plan</think>\n```json\n" + fullReply + "\n```",
		"  <thinking>a</thinking><think>b</think>  ```JSON\n" + fullReply + "```  ",
		"\n\n" + fullReply + "\n",
	}
	for _, w := range wrappings {
		got, err := Normalize(w)
		require.NoError(t, err, w[:20])
		assert.Equal(t, plain, got)
	}
}

func TestStrip_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"<think>x</think>```json\n{\"a\":1}\n```",
		"```\n{}\n```",
		"{\"a\":\"```\"}",
		"<think>unterminated {\"a\":1}",
		"plain text",
		"",
		"```\n```json\n{\"a\":1}\n```\n```",
		"```json\n<think>x</think>\n{\"a\":1}\n```",
	}
	for _, in := range inputs {
		once := Strip(in)
		assert.Equal(t, once, Strip(once), "input %q", in)
	}
	assert.Equal(t, `{"a":1}`, Strip("<think>x</think>```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, Strip("```\n```json\n{\"a\":1}\n```\n```"))
	assert.Equal(t, `{"a":1}`, Strip("```json\n<think>x</think>\n{\"a\":1}\n```"))
}

func TestNormalize_InvalidJSON(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "not json", "{\"chartPoints\": [", "<think>never closed {\"chartPoints\":[{}]}", "```json\n{bad}\n```"} {
		_, err := Normalize(in)
		require.Error(t, err)
		assert.Equal(t, KindInvalidJSONFormat, kindOf(t, err), "input %q", in)
	}
}

// A missing or malformed chartPoints array fails the same way regardless
// of what else the reply contains.
func TestNormalize_MissingChartPoints(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{}`,
		`{"summary":"总评","summaryScore":9}`,
		`{"summary":"x","personality":"y","industry":"z","fengShui":"w","wealth":"v","marriage":"u","health":"t","family":"s","crypto":"r"}`,
		`{"chartPoints": null}`,
		`{"chartPoints": "1,2,3"}`,
		`{"chartPoints": {"age": 1}}`,
		`{"chartPoints": []}`,
		`{"chartPoints": [1, 2]}`,
		`{"chart_points": [{"age": 1}]}`,
		`[{"age": 1}]`,
		`"chartPoints"`,
	}
	for _, in := range inputs {
		_, err := Normalize(in)
		require.Error(t, err, in)
		assert.Equal(t, KindInvalidModelJSON, kindOf(t, err), "input %s", in)
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	e := newError(KindInvalidModelJSON, "bad", errors.New("cause"))
	assert.Equal(t, "normalize: INVALID_MODEL_JSON: bad: cause", e.Error())
	assert.Equal(t, "cause", errors.Unwrap(e).Error())
	assert.Equal(t, "normalize: EMPTY_MODEL_RESPONSE: x", newError(KindEmptyModelResponse, "x", nil).Error())
}
