package errorlogger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Transport returns a RoundTripper that logs network failures and 4xx/5xx
// responses before handing them back unchanged.
func (l *Logger) Transport() http.RoundTripper {
	return &transport{logger: l, base: l.opts.Base}
}

type transport struct {
	logger *Logger
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	res, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.LogFetchError(url, req.Method, 0, err.Error(), map[string]any{"errorType": "network"})
		return nil, err
	}
	if res.StatusCode < 400 || t.logger.ignored(url) {
		return res, nil
	}

	message := fmt.Sprintf("HTTP %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	if msg := peekErrorMessage(res); msg != "" {
		message = msg
	}
	t.logger.LogFetchError(url, req.Method, res.StatusCode, message, nil)
	return res, nil
}

// peekErrorMessage reads the start of the body for an "error" or "message"
// field and puts the bytes back so the caller sees the full body.
func peekErrorMessage(res *http.Response) string {
	if res.Body == nil {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
	res.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(head), res.Body), closer: res.Body}
	if err != nil {
		return ""
	}

	var body struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(head, &body) != nil {
		return ""
	}
	if s, ok := body.Error.(string); ok && s != "" {
		return s
	}
	return body.Message
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error { return b.closer.Close() }
