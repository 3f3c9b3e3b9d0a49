// Package media classifies uploaded report media into structured findings.
// Images go through the vision model with their raw bytes inline; video gets
// a text-only prompt since no frame extraction is performed.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/image/draw"

	"nextsignal/config"
	"nextsignal/internal/llm"
	"nextsignal/internal/report"
	"nextsignal/metrics"
)

const (
	maxImageDimension = 1024
	maxMediaBytes     = 20 << 20
)

// Item is one media attachment to analyze.
type Item struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Analyzer runs the per-item media analysis. One item's failure never blocks
// the others and never propagates past Analyze.
type Analyzer struct {
	client  llm.Client
	fetcher *resty.Client
	prompts *config.PromptManager
	metrics *metrics.Metrics
}

// NewAnalyzer wires the analyzer. A nil fetcher gets a default with retries.
func NewAnalyzer(client llm.Client, fetcher *resty.Client, prompts *config.PromptManager, m *metrics.Metrics) *Analyzer {
	if fetcher == nil {
		fetcher = resty.New().
			SetRetryCount(2).
			SetRetryWaitTime(2 * time.Second).
			SetTimeout(30 * time.Second)
	}
	return &Analyzer{client: client, fetcher: fetcher, prompts: prompts, metrics: m}
}

// Analyze processes every item independently and returns exactly one entry
// per input item, in input order. Entries carry either a finding or an error
// string, never both.
func (a *Analyzer) Analyze(ctx context.Context, items []Item) []report.MediaAnalysis {
	out := make([]report.MediaAnalysis, len(items))
	for i, item := range items {
		out[i] = a.analyzeOne(ctx, item)
	}
	a.metrics.RecordMediaAnalyzed(len(items))
	return out
}

func (a *Analyzer) analyzeOne(ctx context.Context, item Item) report.MediaAnalysis {
	entry := report.MediaAnalysis{
		MediaURL:  item.URL,
		MediaType: item.Type,
		Timestamp: time.Now().UTC(),
	}

	var finding *report.MediaFinding
	var err error
	if isImage(item.Type) {
		finding, err = a.analyzeImage(ctx, item)
	} else {
		finding, err = a.analyzeVideo(ctx)
	}
	if err != nil {
		log.Printf("media analysis failed for %s: %v", item.URL, err)
		a.metrics.RecordAICall(true)
		entry.Error = err.Error()
		return entry
	}
	entry.Finding = finding
	return entry
}

func isImage(mediaType string) bool {
	t := strings.ToLower(strings.TrimSpace(mediaType))
	return t == "image" || strings.HasPrefix(t, "image/")
}

func (a *Analyzer) analyzeImage(ctx context.Context, item Item) (*report.MediaFinding, error) {
	data, mime, err := a.fetchBytes(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	data, mime = downscale(data, mime)

	text, err := a.client.Generate(ctx, llm.Request{
		Prompt:    a.prompts.Current().ImagePrompt,
		Image:     data,
		ImageMIME: mime,
	})
	if err != nil {
		return nil, err
	}
	a.metrics.RecordAICall(false)
	return a.parseFinding(text, 0.8), nil
}

// analyzeVideo sends a text-only prompt. No frames are extracted from the
// video itself, so the model answers from the prompt alone.
func (a *Analyzer) analyzeVideo(ctx context.Context) (*report.MediaFinding, error) {
	text, err := a.client.Generate(ctx, llm.Request{Prompt: a.prompts.Current().VideoPrompt})
	if err != nil {
		return nil, err
	}
	a.metrics.RecordAICall(false)
	return a.parseFinding(text, 0.6), nil
}

// parseFinding decodes the model's answer, substituting a conservative
// default finding when the answer is not usable JSON.
func (a *Analyzer) parseFinding(text string, fallbackConfidence float64) *report.MediaFinding {
	var finding report.MediaFinding
	if err := llm.DecodeJSON(text, &finding); err != nil {
		log.Printf("media finding unparseable, using default: %v", err)
		return &report.MediaFinding{
			Category:        report.CategoryInfrastructure,
			Severity:        report.SeverityMedium,
			Description:     "AI analysis completed with limited detail",
			Impact:          "Unknown",
			Recommendations: "Manual review recommended",
			Confidence:      fallbackConfidence,
			DetectedObjects: []string{},
			Urgency:         report.UrgencyRoutine,
		}
	}
	if !report.ValidCategory(finding.Category) {
		finding.Category = report.CategoryInfrastructure
	}
	if !report.ValidSeverity(finding.Severity) {
		finding.Severity = report.SeverityMedium
	}
	if !report.ValidUrgency(finding.Urgency) {
		finding.Urgency = report.UrgencyRoutine
	}
	return &finding
}

func (a *Analyzer) fetchBytes(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := a.fetcher.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode() != 200 {
		return nil, "", fmt.Errorf("media fetch status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, "", fmt.Errorf("empty media body")
	}
	if len(body) > maxMediaBytes {
		return nil, "", fmt.Errorf("media too large: %d bytes", len(body))
	}
	mime := strings.TrimSpace(strings.Split(resp.Header().Get("Content-Type"), ";")[0])
	if mime == "" {
		mime = "image/jpeg"
	}
	return body, mime, nil
}

// downscale shrinks oversized images before the vision call. Undecodable
// input passes through untouched; the model gets the original bytes.
func downscale(data []byte, mime string) ([]byte, string) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mime
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxImageDimension && h <= maxImageDimension {
		return data, mime
	}
	scale := float64(maxImageDimension) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return data, mime
	}
	return buf.Bytes(), "image/jpeg"
}
