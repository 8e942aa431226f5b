package httpapi

import (
	"bytes"
	"encoding/json"
	"math"

	"quackquery/internal/domain"
)

// parseSettingsPatch keeps only known fields with the expected JSON type.
// Anything else is dropped without an error.
func parseSettingsPatch(raw map[string]json.RawMessage) domain.SettingsPatch {
	var p domain.SettingsPatch

	if v, ok := raw["maintenance"]; ok && !isNull(v) {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			p.Maintenance = &b
		}
	}
	if v, ok := raw["downloadEnabled"]; ok && !isNull(v) {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			p.DownloadEnabled = &b
		}
	}
	if v, ok := raw["maxFreeDownloads"]; ok && !isNull(v) {
		var f float64
		if json.Unmarshal(v, &f) == nil && f == math.Trunc(f) && f >= 0 && f <= math.MaxInt32 {
			n := int(f)
			p.MaxFreeDownloads = &n
		}
	}
	if v, ok := raw["announcements"]; ok {
		var list []string
		if json.Unmarshal(v, &list) == nil && list != nil {
			p.Announcements = list
			p.HasAnnouncements = true
		}
	}
	return p
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
