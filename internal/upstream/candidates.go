package upstream

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lifeline/internal/model"
)

var (
	// ErrMissingCustomConfig is returned when custom credentials are
	// requested without a base URL, key and model.
	ErrMissingCustomConfig = eris.New("upstream: custom base url, key and model are required")
	// ErrDefaultKeyNotSet is returned when the server has no default key.
	ErrDefaultKeyNotSet = eris.New("upstream: default api key is not configured")
)

// Defaults are the server-owned upstream settings.
type Defaults struct {
	BaseURL   string
	APIKey    string
	Model     string
	Fallbacks []string
	Protocol  Protocol
}

// Candidates builds the ordered candidate list for a sanitized request.
// Custom credentials yield exactly one candidate. Otherwise the default
// model is followed by the fallback models, skipping repeated names.
func Candidates(req model.AnalysisRequest, d Defaults) ([]Candidate, error) {
	if req.UseCustomAPI {
		if !req.HasCustomCredentials() {
			return nil, ErrMissingCustomConfig
		}
		return []Candidate{{BaseURL: req.APIBaseURL, APIKey: req.APIKey, Model: req.ModelName, Protocol: ProtocolOpenAI}}, nil
	}

	if strings.TrimSpace(d.APIKey) == "" {
		return nil, ErrDefaultKeyNotSet
	}

	base := strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	proto := d.Protocol
	if proto == "" {
		proto = ProtocolOpenAI
	}
	seen := make(map[string]bool, len(d.Fallbacks)+1)
	var out []Candidate
	for _, m := range append([]string{d.Model}, d.Fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, Candidate{BaseURL: base, APIKey: d.APIKey, Model: m, Protocol: proto})
	}
	if len(out) == 0 {
		return nil, eris.New("upstream: no default model configured")
	}
	return out, nil
}

// Models returns the model names of cs in order.
func Models(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Model
	}
	return out
}
