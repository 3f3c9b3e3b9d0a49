package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// PromptConfig captures the prompt templates used by the AI adapters. Each
// template is plain text; the adapters append their own data sections. The
// fields can be customized via config.yaml (JSON is also accepted because it
// is a subset of YAML 1.2) and hot-reloaded through Manager.
type PromptConfig struct {
	GroupingPrompt   string `json:"grouping_prompt" yaml:"grouping_prompt"`
	SynthesisPrompt  string `json:"synthesis_prompt" yaml:"synthesis_prompt"`
	ImagePrompt      string `json:"image_prompt" yaml:"image_prompt"`
	VideoPrompt      string `json:"video_prompt" yaml:"video_prompt"`
	PredictionPrompt string `json:"prediction_prompt" yaml:"prediction_prompt"`
	SentimentPrompt  string `json:"sentiment_prompt" yaml:"sentiment_prompt"`
}

// DefaultPromptConfig returns the baked-in prompt templates.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		GroupingPrompt: `Group these city reports by similarity. Reports about the same incident or very similar issues should be grouped together.
Consider location proximity, category, and content similarity.
Return a JSON array of groups, where each group contains report IDs:
[
  {"groupId": "group1", "reportIds": ["id1", "id2"], "primaryCategory": "traffic", "commonLocation": {"lat": 12.34, "lng": 56.78}},
  {"groupId": "group2", "reportIds": ["id3"], "primaryCategory": "safety", "commonLocation": {"lat": 12.35, "lng": 56.79}}
]
Every report ID must appear in exactly one group. Use only the IDs provided.`,
		SynthesisPrompt: `Synthesize these related city reports into a single comprehensive event summary.
Provide clear, actionable information for city management.
Create a JSON response with:
{
  "title": "Clear, concise event title",
  "description": "Comprehensive description combining all reports",
  "category": "primary category",
  "severity": "highest severity level from reports (low|medium|high)",
  "confidence": 0.0,
  "affectedArea": "description of affected area",
  "recommendations": "actionable recommendations",
  "estimatedImpact": "number of people/area affected",
  "urgency": "immediate|hours|days|routine",
  "actionRequired": true
}`,
		ImagePrompt: `Analyze this image for city infrastructure and safety issues. Provide:
1. Category (traffic, safety, infrastructure, environment, events, emergency)
2. Severity (low, medium, high)
3. Description of what you see
4. Potential impact on citizens
5. Recommended actions
6. Confidence score (0-1)
Format your response as JSON with these fields:
{
  "category": "string",
  "severity": "string",
  "description": "string",
  "impact": "string",
  "recommendations": "string",
  "confidence": 0.0,
  "detectedObjects": ["array of objects/issues seen"],
  "urgency": "immediate|hours|days|routine"
}`,
		VideoPrompt: `Based on a video report about city issues, provide analysis in JSON format:
{
  "category": "infrastructure",
  "severity": "medium",
  "description": "Video analysis of urban issue",
  "impact": "Potential impact on citizens",
  "recommendations": "Suggested actions",
  "confidence": 0.7,
  "detectedObjects": ["motion", "urban environment"],
  "urgency": "routine"
}`,
		PredictionPrompt: `Analyze these city data patterns and generate predictions for urban management.
Generate predictions in JSON format:
[
  {
    "title": "Prediction title",
    "description": "Detailed prediction description",
    "category": "affected category",
    "risk": "low|medium|high",
    "confidence": 0.85,
    "timeFrame": "next 24 hours|next week|next month",
    "likelihood": 0.75,
    "impact": "description of potential impact",
    "preventiveActions": "recommended preventive measures",
    "monitoringPoints": ["key indicators to watch"]
  }
]
Focus on actionable insights for city management.`,
		SentimentPrompt: `Score the sentiment of the following citizen report text.
Return JSON: {"score": number between -1.0 and 1.0, "magnitude": number >= 0}.
Negative scores mean frustration or distress, positive scores mean satisfaction.`,
	}
}

// LoadPromptConfig reads the prompts section of the config file and merges it
// with defaults.
func LoadPromptConfig(path string) (PromptConfig, error) {
	cfg := DefaultPromptConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	var parsed struct {
		Prompts PromptConfig `json:"prompts" yaml:"prompts"`
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &parsed)
	default:
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return cfg, err
	}
	return MergePromptConfig(cfg, parsed.Prompts), nil
}

// MergePromptConfig overlays non-empty override fields onto base.
func MergePromptConfig(base, override PromptConfig) PromptConfig {
	if strings.TrimSpace(override.GroupingPrompt) != "" {
		base.GroupingPrompt = override.GroupingPrompt
	}
	if strings.TrimSpace(override.SynthesisPrompt) != "" {
		base.SynthesisPrompt = override.SynthesisPrompt
	}
	if strings.TrimSpace(override.ImagePrompt) != "" {
		base.ImagePrompt = override.ImagePrompt
	}
	if strings.TrimSpace(override.VideoPrompt) != "" {
		base.VideoPrompt = override.VideoPrompt
	}
	if strings.TrimSpace(override.PredictionPrompt) != "" {
		base.PredictionPrompt = override.PredictionPrompt
	}
	if strings.TrimSpace(override.SentimentPrompt) != "" {
		base.SentimentPrompt = override.SentimentPrompt
	}
	return base
}

// PromptManager hands out the current prompt templates and accepts reloads
// from the config watcher. Safe for concurrent use.
type PromptManager struct {
	mu      sync.RWMutex
	current PromptConfig
	path    string
}

// NewPromptManager seeds a manager with the already-loaded config.
func NewPromptManager(path string, initial PromptConfig) *PromptManager {
	return &PromptManager{current: initial, path: path}
}

// Current returns the active prompt templates.
func (m *PromptManager) Current() PromptConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload re-reads the config file and swaps in the new templates. The old
// templates stay active when the file is unreadable.
func (m *PromptManager) Reload() error {
	cfg, err := LoadPromptConfig(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()
	return nil
}

// Path returns the watched config file path.
func (m *PromptManager) Path() string { return m.path }
