package retrieval

import (
	"encoding/json"
	"time"
)

func decodeMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func volatilityClassOf(metaJSON []byte) string {
	meta := decodeMetadata(metaJSON)
	if vc, ok := meta["volatility_class"].(string); ok && vc != "" {
		return vc
	}
	return "low"
}

func applySystemRecordTTL(rec *SystemContextRecord, metaJSON []byte) {
	rec.Metadata = decodeMetadata(metaJSON)
	ttlDays, ok := rec.Metadata["ttl_days"].(float64)
	if !ok {
		return
	}
	if time.Now().UTC().After(rec.UpdatedAt.Add(time.Duration(ttlDays) * 24 * time.Hour)) {
		rec.IsExpired = true
		rec.Warning = "TTL EXPIRED: This memory (ID: " + rec.ID.String() + ") may be outdated. Please verify with the user and update if necessary."
	}
}
