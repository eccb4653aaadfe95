package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DecimalFromString creates a decimal from string, falling back to zero
func DecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalFromFloat creates a decimal from float64
func DecimalFromFloat(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// EncodeMediaURLs serializes media URLs for the posts table.
func EncodeMediaURLs(urls []string) string {
	if len(urls) == 0 {
		return "[]"
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeMediaURLs parses the stored media URL list.
func DecodeMediaURLs(raw string) []string {
	if raw == "" {
		return nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil
	}
	return urls
}
