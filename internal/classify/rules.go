package classify

import (
	"strings"

	"threatwatch/internal/domain"
)

// SeverityRule binds one severity tier to its trigger keywords. Rules are
// evaluated in slice order and the first matching tier wins, so the table
// itself encodes the tie-break.
type SeverityRule struct {
	Priority domain.Priority
	Keywords []string
}

// severityOverrides re-maps an incident's priority from literal keyword
// matches, after the model prediction. Highest tier first.
var severityOverrides = []SeverityRule{
	{domain.PriorityCritical, []string{
		"ransomware", "zero-day", "zero day", "data breach", "supply chain attack",
		"actively exploited", "remote code execution", "wiper",
	}},
	{domain.PriorityHigh, []string{
		"exploit", "vulnerability", "malware", "apt", "botnet", "privilege escalation",
		"credential theft",
	}},
	{domain.PriorityMedium, []string{
		"phishing", "scam", "ddos", "defacement", "spam campaign",
	}},
}

// CategoryRule labels an incident from keyword matches; first match wins.
type CategoryRule struct {
	Category string
	Keywords []string
}

var categoryRules = []CategoryRule{
	{"Ransomware", []string{"ransomware", "extortion"}},
	{"Vulnerability", []string{"vulnerability", "cve-", "zero-day", "zero day", "patch"}},
	{"Data Breach", []string{"data breach", "leaked", "exposed database", "stolen data"}},
	{"Malware", []string{"malware", "trojan", "botnet", "spyware", "wiper"}},
	{"Phishing", []string{"phishing", "scam", "credential theft"}},
	{"DDoS", []string{"ddos", "denial of service"}},
	{"Supply Chain", []string{"supply chain", "dependency", "package registry"}},
}

// SectorRule maps category and text keywords onto an affected sector.
type SectorRule struct {
	Sector   string
	Keywords []string
}

const defaultSector = "General"

var sectorRules = []SectorRule{
	{"Healthcare", []string{"hospital", "health", "medical", "patient", "clinic"}},
	{"Finance", []string{"bank", "financial", "payment", "fintech", "insurance"}},
	{"Energy", []string{"power grid", "energy", "utility", "pipeline", "electric"}},
	{"Government", []string{"government", "ministry", "federal", "municipal", "election"}},
	{"Education", []string{"university", "school", "education", "campus"}},
	{"Telecom", []string{"telecom", "isp", "mobile operator", "carrier"}},
	{"Critical Infrastructure", []string{"scada", "ics", "critical infrastructure", "industrial control"}},
}

// OverrideSeverity returns the first matching severity tier for the text,
// if any keyword matches.
func OverrideSeverity(text string) (domain.Priority, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range severityOverrides {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Priority, true
			}
		}
	}
	return "", false
}

// DeriveCategory labels the text from the category table, falling back to
// the feed-provided category and finally a generic label.
func DeriveCategory(text, feedCategory string) string {
	lowered := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Category
			}
		}
	}
	if feedCategory != "" {
		return feedCategory
	}
	return "Cyber News"
}

// DeriveSector maps category plus text onto a sector, defaulting to
// General.
func DeriveSector(category, text string) string {
	lowered := strings.ToLower(category + " " + text)
	for _, rule := range sectorRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Sector
			}
		}
	}
	return defaultSector
}

// Threat score weights; they sum to 1 and the result stays in [0,1].
const (
	weightPriority = 0.6
	weightAnomaly  = 0.3
	weightUseful   = 0.1
)

// ThreatScore combines priority, anomaly, and usefulness into one [0,1]
// figure.
func ThreatScore(p domain.Priority, anomaly, useful float64) float64 {
	return domain.Clamp01(
		weightPriority*p.Weight() +
			weightAnomaly*domain.Clamp01(anomaly) +
			weightUseful*domain.Clamp01(useful))
}
