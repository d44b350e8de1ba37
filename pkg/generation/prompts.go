package generation

import (
	"fmt"
	"strings"
)

// WeatherData is the forecast payload forwarded by the client
type WeatherData struct {
	Current CurrentConditions `json:"current" validate:"required"`
	Hourly  HourlyForecast    `json:"hourly"`
	Daily   DailyForecast     `json:"daily" validate:"required"`
}

// CurrentConditions are point-in-time readings
type CurrentConditions struct {
	Temperature         float64 `json:"temperature_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	PressureMSL         float64 `json:"pressure_msl"`
	WindSpeed           float64 `json:"wind_speed_10m"`
	WindGusts           float64 `json:"wind_gusts_10m"`
	WindDirection       float64 `json:"wind_direction_10m"`
	CloudCover          float64 `json:"cloud_cover"`
}

// HourlyForecast holds hourly series
type HourlyForecast struct {
	Visibility []float64 `json:"visibility"`
}

// DailyForecast holds daily series, today first
type DailyForecast struct {
	TemperatureMin   []float64 `json:"temperature_2m_min"`
	TemperatureMax   []float64 `json:"temperature_2m_max"`
	PrecipitationSum []float64 `json:"precipitation_sum"`
	UVIndexMax       []float64 `json:"uv_index_max"`
	WindSpeedMax     []float64 `json:"wind_speed_10m_max"`
}

func first(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

func head(values []float64, n int) []float64 {
	if len(values) < n {
		return values
	}
	return values[:n]
}

func num(v float64) string {
	return fmt.Sprintf("%g", v)
}

// WeatherBriefPrompt builds the marine meteorologist prompt
func WeatherBriefPrompt(locationName string, lat, lon float64, data WeatherData) string {
	cur, daily := data.Current, data.Daily

	rain := make([]string, 0, 3)
	for _, p := range head(daily.PrecipitationSum, 3) {
		rain = append(rain, num(p)+"mm")
	}
	maxWind := 0.0
	for i, w := range head(daily.WindSpeedMax, 3) {
		if i == 0 || w > maxWind {
			maxWind = w
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Act as an expert marine meteorologist. Analyze the detailed weather data for %s (Lat: %s, Lon: %s) provided by MARINOVA's sensor network.\n\n", locationName, num(lat), num(lon))
	b.WriteString("CURRENT CONDITIONS:\n")
	fmt.Fprintf(&b, "- Temp: %s°C (Feels like %s°C)\n", num(cur.Temperature), num(cur.ApparentTemperature))
	fmt.Fprintf(&b, "- Pressure: %s hPa\n", num(cur.PressureMSL))
	fmt.Fprintf(&b, "- Wind: %s km/h (Gusts: %s km/h) at %s°\n", num(cur.WindSpeed), num(cur.WindGusts), num(cur.WindDirection))
	fmt.Fprintf(&b, "- Visibility: %s km\n", num(first(data.Hourly.Visibility)/1000))
	fmt.Fprintf(&b, "- Cloud Cover: %s%%\n", num(cur.CloudCover))
	fmt.Fprintf(&b, "- UV Index Today: %s\n\n", num(first(daily.UVIndexMax)))
	b.WriteString("FORECAST (Next 3 Days):\n")
	fmt.Fprintf(&b, "- Temps: %s°C - %s°C\n", num(first(daily.TemperatureMin)), num(first(daily.TemperatureMax)))
	fmt.Fprintf(&b, "- Precip: %s\n", strings.Join(rain, ", "))
	fmt.Fprintf(&b, "- Max Winds: %s km/h\n\n", num(maxWind))
	b.WriteString(`Provide a "Captain's Intelligence Brief":
1. **Situation**: Brief summary of current sea/air state (Stability, Visibility).
2. **Advisory**: Specific warnings for mariners (Gale force, Squalls, Fog, UV exposure).
3. **Outlook**: What to expect over the next 48 hours.
4. **Ocean Fact**: A short, fascinating fact about this specific coordinates/ocean region.

Tone: Professional, nautical, yet accessible. Do not mention external data providers.`)
	return b.String()
}

// ResearchReportPrompt asks for a markdown report with parseable sources
func ResearchReportPrompt(topic string) string {
	return fmt.Sprintf(`You are a marine research specialist. Generate a comprehensive research report on: %q

Include:
1. Executive Summary
2. Background & Context
3. Current Research & Findings
4. Key Data & Statistics
5. Future Implications
6. Conclusion

Format in markdown with headers (##). Be detailed and scientific. Include 3-5 credible sources at the end.

Sources format:
[SOURCE 1] Title | URL
[SOURCE 2] Title | URL`, topic)
}

// MonthlyInsightsPrompt asks for thirty days of insights as a JSON array
func MonthlyInsightsPrompt() string {
	return `Generate 30 days of oceanographic insights, predictions, and anomalies for a global ocean monitoring platform.

For each day, provide ONE insight in this EXACT JSON format:
{
  "date": "2024-XX-XX",
  "title": "Brief title",
  "type": "Prediction|Observation|Anomaly|Event",
  "region": "Ocean region",
  "description": "150-word detailed description",
  "confidence": 60-95,
  "severity": "Low|Medium|Critical|Positive",
  "tags": ["tag1", "tag2", "tag3"]
}

Cover diverse topics: coral bleaching, currents, temperatures, marine life, pollution, climate patterns.
Return ONLY a JSON array of 30 insights, nothing else.`
}

// ImagePrompt frames a user description for the image model
func ImagePrompt(description string) string {
	return fmt.Sprintf("Ocean/marine themed: %s. Realistic, scientific, beautiful.", description)
}
