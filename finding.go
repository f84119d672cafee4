package aiqueue

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks a finding. Higher levels are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityInfo:     "Informational",
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// Level returns the numeric rank, 0 (informational) through 4 (critical).
func (s Severity) Level() int { return int(s) }

// String returns the display name.
func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts a display name, an upper-case constant name or "info".
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "info" {
		return SeverityInfo, nil
	}
	for i, sn := range severityNames {
		if strings.ToLower(sn) == n {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("aiqueue: unknown severity %q", name)
}

// Finding is one scanner result. It is plain data supplied by callers.
type Finding struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Severity    Severity  `json:"severity"`
	Category    string    `json:"category"`
	FilePath    string    `json:"file_path"`
	Line        int       `json:"line"`
	Description string    `json:"description,omitempty"`
	Evidence    string    `json:"evidence,omitempty"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detected_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// NewFinding builds a Finding with a clamped confidence and DetectedAt set to now.
func NewFinding(id, title string, sev Severity, category, filePath string, line int, description, evidence string, confidence float64) Finding {
	return Finding{
		ID:          id,
		Title:       title,
		Severity:    sev,
		Category:    category,
		FilePath:    filePath,
		Line:        line,
		Description: description,
		Evidence:    evidence,
		Confidence:  ClampConfidence(confidence),
		DetectedAt:  time.Now(),
	}
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 || c != c {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// AddTag appends tag unless it is blank or already present.
func (f *Finding) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, t := range f.Tags {
		if t == tag {
			return
		}
	}
	f.Tags = append(f.Tags, tag)
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s - %s (confidence: %.2f)", f.Severity, f.Title, f.FilePath, f.Confidence)
}
