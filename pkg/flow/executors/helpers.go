package executors

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// renderTemplate executes a Go template string against a data map.
func renderTemplate(tplStr string, data map[string]any) (string, error) {
	tpl, err := template.New("").Parse(tplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// isImageValue reports whether a bag value carries image data rather than
// prompt text.
func isImageValue(v any) bool {
	switch t := v.(type) {
	case flow.ImagePayload:
		return true
	case string:
		return strings.HasPrefix(t, "data:image/")
	}
	return false
}

// collectImages pulls distinct image payloads out of the bag in edge order.
func collectImages(in flow.Inputs) []string {
	seen := make(map[string]bool)
	var images []string
	for _, key := range in.Keys() {
		v, _ := in.Get(key)
		if !isImageValue(v) {
			continue
		}
		s := flow.Stringify(v)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		images = append(images, s)
	}
	return images
}

// firstText returns the first non-image input in edge order, rendered as
// text.
func firstText(in flow.Inputs) (string, bool) {
	for _, key := range in.Keys() {
		v, _ := in.Get(key)
		if isImageValue(v) {
			continue
		}
		return flow.Stringify(v), true
	}
	return "", false
}
