package utils

import (
	"strings"

	"go.uber.org/zap"
)

// Preview flattens s onto one line and cuts it to limit runes.
func Preview(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// PreviewField is Preview as a zap field, with the original length attached.
func PreviewField(key, s string, limit int) zap.Field {
	return zap.Dict(key,
		zap.String("text", Preview(s, limit)),
		zap.Int("length", len([]rune(s))),
	)
}
