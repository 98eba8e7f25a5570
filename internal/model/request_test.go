package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenderValid(t *testing.T) {
	t.Parallel()

	assert.True(t, GenderMale.Valid())
	assert.True(t, GenderFemale.Valid())
	assert.False(t, Gender("").Valid())
	assert.False(t, Gender("male").Valid())
}

func TestAnalysisRequest_Sanitized(t *testing.T) {
	t.Parallel()

	req := AnalysisRequest{
		Name:         "  张三 ",
		Gender:       " Male",
		YearPillar:   " 庚午 ",
		FirstDaYun:   "戊申\n",
		UseCustomAPI: true,
		APIBaseURL:   " https://api.example.com/v1/// ",
		APIKey:       " sk-test ",
		ModelName:    " gpt-x ",
		UserPrompt:   "   ",
	}

	got := req.Sanitized()
	assert.Equal(t, "张三", got.Name)
	assert.Equal(t, GenderMale, got.Gender)
	assert.Equal(t, "庚午", got.YearPillar)
	assert.Equal(t, "戊申", got.FirstDaYun)
	assert.Equal(t, "https://api.example.com/v1", got.APIBaseURL)
	assert.Equal(t, "sk-test", got.APIKey)
	assert.Equal(t, "gpt-x", got.ModelName)
	assert.Empty(t, got.UserPrompt)
	assert.True(t, got.HasCustomCredentials())

	// Original is untouched.
	assert.Equal(t, "  张三 ", req.Name)
}

func TestAnalysisRequest_HasCustomCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  AnalysisRequest
		want bool
	}{
		{"all set", AnalysisRequest{APIBaseURL: "u", APIKey: "k", ModelName: "m"}, true},
		{"missing key", AnalysisRequest{APIBaseURL: "u", ModelName: "m"}, false},
		{"missing url", AnalysisRequest{APIKey: "k", ModelName: "m"}, false},
		{"missing model", AnalysisRequest{APIBaseURL: "u", APIKey: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.req.HasCustomCredentials())
		})
	}
}

func TestAnalysisRequest_JSONKeys(t *testing.T) {
	t.Parallel()

	body := `{"name":"李四","gender":"Female","birthYear":1990,"yearPillar":"庚午","monthPillar":"戊寅",
		"dayPillar":"甲子","hourPillar":"丙寅","startAge":5,"firstDaYun":"己卯","useCustomApi":true,
		"apiBaseUrl":"https://x","apiKey":"k","modelName":"m","userPrompt":"hi"}`

	var req AnalysisRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, GenderFemale, req.Gender)
	assert.Equal(t, 1990, req.BirthYear)
	assert.Equal(t, 5, req.StartAge)
	assert.Equal(t, "己卯", req.FirstDaYun)
	assert.True(t, req.UseCustomAPI)
	assert.Equal(t, "hi", req.UserPrompt)
	assert.Equal(t, [4]string{"庚午", "戊寅", "甲子", "丙寅"}, req.Pillars())
}
