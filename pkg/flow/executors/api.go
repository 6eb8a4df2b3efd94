package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

const defaultAPITimeout = 30 * time.Second

// APIRequest makes an HTTP call. The "url", "body" and "headers" config
// values are Go templates rendered against the input bag; "headers" holds
// semicolon-separated Key:Value pairs. JSON response bodies decode into
// structured values, anything else records as text. Error statuses (>= 400)
// fail the node unless "allowErrorStatus" is set.
type APIRequest struct{}

func (*APIRequest) Execute(ctx context.Context, ec *flow.ExecContext) (any, error) {
	node := ec.Node
	data := ec.Inputs.Map()

	urlTpl := node.ConfigString("url")
	if urlTpl == "" {
		return nil, fmt.Errorf("api node %q: missing required %q config", node.ID, "url")
	}
	urlStr, err := renderTemplate(urlTpl, data)
	if err != nil {
		return nil, fmt.Errorf("api node %q: url template: %w", node.ID, err)
	}

	method := strings.ToUpper(node.ConfigString("method"))
	if method == "" {
		method = "GET"
	}

	var bodyStr string
	var bodyReader io.Reader
	if bodyTpl := node.ConfigString("body"); bodyTpl != "" {
		bodyStr, err = renderTemplate(bodyTpl, data)
		if err != nil {
			return nil, fmt.Errorf("api node %q: body template: %w", node.ID, err)
		}
		bodyReader = strings.NewReader(bodyStr)
	}

	timeout := defaultAPITimeout
	if ts := node.ConfigString("timeout"); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, urlStr, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api node %q: build request: %w", node.ID, err)
	}

	if headersTpl := node.ConfigString("headers"); headersTpl != "" {
		headersStr, err := renderTemplate(headersTpl, data)
		if err != nil {
			return nil, fmt.Errorf("api node %q: headers template: %w", node.ID, err)
		}
		for _, pair := range strings.Split(headersStr, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			idx := strings.IndexByte(pair, ':')
			if idx < 0 {
				return nil, fmt.Errorf("api node %q: header %q missing ':' separator", node.ID, pair)
			}
			req.Header.Set(strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:]))
		}
	}
	if bodyStr != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api node %q: request failed: %w", node.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api node %q: read response body: %w", node.ID, err)
	}

	if resp.StatusCode >= 400 && !node.ConfigBool("allowErrorStatus") {
		return nil, fmt.Errorf("api node %q: status %d: %s", node.ID, resp.StatusCode, snippet(bodyBytes))
	}

	var decoded any
	if json.Unmarshal(bodyBytes, &decoded) == nil {
		return decoded, nil
	}
	return string(bodyBytes), nil
}

// snippet trims a response body for inclusion in an error message.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "…"
	}
	return s
}
