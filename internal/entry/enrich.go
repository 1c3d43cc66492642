package entry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type platformRule struct {
	name    string
	markers []string
}

// Checked in order; the first rule with a marker in the content wins.
var platformRules = []platformRule{
	{"Twitter/X", []string{"#twitter", "#tweet", "@"}},
	{"Instagram", []string{"#instagram", "#insta", "#ig"}},
	{"Facebook", []string{"#facebook", "#fb"}},
	{"LinkedIn", []string{"#linkedin", "#in"}},
	{"TikTok", []string{"#tiktok", "#fyp", "#foryou"}},
	{"YouTube", []string{"#youtube", "#yt"}},
	{"Reddit", []string{"#reddit", "/r/"}},
}

// DetectPlatform guesses the social media platform a piece of content was
// written for from its hashtags and keywords.
func DetectPlatform(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range platformRules {
		for _, m := range rule.markers {
			if strings.Contains(lower, m) {
				return rule.name
			}
		}
	}
	if strings.Contains(lower, "http") {
		return "Web/Blog"
	}
	return "Social Media"
}

var dateMetadataKeys = []string{"date", "timestamp", "created_at"}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
}

// ExtractDate returns the date of an entry, preferring metadata over dates
// found in the content. It returns "" when none is found.
func ExtractDate(e Entry) string {
	for _, key := range dateMetadataKeys {
		if v, ok := e.Metadata[key]; ok && v != nil {
			return metadataString(v)
		}
	}
	for _, re := range datePatterns {
		if m := re.FindString(e.Content); m != "" {
			return m
		}
	}
	return ""
}

// metadataString renders a metadata scalar. JSON numbers arrive as float64,
// which fmt would print in exponent form for epoch timestamps.
func metadataString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
