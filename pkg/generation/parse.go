package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Source is a citation extracted from a research report
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Report is a generated research report
type Report struct {
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
}

// Insight is one generated ocean observation or prediction
type Insight struct {
	ID          string   `json:"id"`
	Date        string   `json:"date"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Region      string   `json:"region"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	Severity    string   `json:"severity"`
	Tags        []string `json:"tags"`
}

var sourceLine = regexp.MustCompile(`(?m)^\[SOURCE \d+\] (.+?) \| (.+?)$`)

// ParseSources extracts "[SOURCE n] Title | URL" lines
func ParseSources(content string) []Source {
	sources := []Source{}
	for _, m := range sourceLine.FindAllStringSubmatch(content, -1) {
		sources = append(sources, Source{
			Title: strings.TrimSpace(m[1]),
			URL:   strings.TrimSpace(m[2]),
		})
	}
	return sources
}

// ParseInsights decodes a JSON array of insights and numbers them from 1.
// Surrounding prose and code fences are tolerated.
func ParseInsights(content string) ([]Insight, error) {
	fragment := extractJSONArray(content)
	if fragment == "" {
		fragment = "[]"
	}

	var insights []Insight
	if err := json.Unmarshal([]byte(fragment), &insights); err != nil {
		return nil, fmt.Errorf("failed to parse insights: %w", err)
	}
	for i := range insights {
		insights[i].ID = fmt.Sprintf("ai-insight-%d", i+1)
	}
	if insights == nil {
		insights = []Insight{}
	}
	return insights, nil
}

func extractJSONArray(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
