package openai

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// modelTransport writes the configured model name into the "model" field of
// every JSON request body. The SDK encodes models as its own enum, which
// cannot name hosted catalog models such as "nvidia/nv-embed-v2".
type modelTransport struct {
	model string
	base  http.RoundTripper
}

func (t *modelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return t.base.RoundTrip(req)
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	var body map[string]json.RawMessage
	if json.Unmarshal(data, &body) == nil {
		model, err := json.Marshal(t.model)
		if err != nil {
			return nil, err
		}
		body["model"] = model
		if data, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.ContentLength = int64(len(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return t.base.RoundTrip(out)
}
