package providers

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// imageDataURI renders an image payload as a data URI. Payloads that already
// are data URIs pass through unchanged.
func imageDataURI(payload string) string {
	if strings.HasPrefix(payload, "data:") {
		return payload
	}
	media, data := splitImagePayload(payload)
	return "data:" + media + ";base64," + data
}

// splitImagePayload splits an image payload into media type and bare base64
// data. Payloads may arrive as full data URIs ("data:image/png;base64,…") or
// as bare base64; in the latter case the media type is sniffed from the
// decoded bytes, defaulting to image/png.
func splitImagePayload(payload string) (media, data string) {
	if strings.HasPrefix(payload, "data:") {
		rest := payload[len("data:"):]
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			meta := rest[:comma]
			data = rest[comma+1:]
			media = strings.TrimSuffix(meta, ";base64")
			if media == "" {
				media = "image/png"
			}
			return media, data
		}
	}

	data = payload
	media = "image/png"
	if raw, err := base64.StdEncoding.DecodeString(payload); err == nil && len(raw) > 0 {
		if ct := http.DetectContentType(raw); strings.HasPrefix(ct, "image/") {
			media = ct
		}
	}
	return media, data
}
