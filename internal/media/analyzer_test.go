package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"

	"nextsignal/config"
	"nextsignal/internal/llm"
	"nextsignal/internal/report"
	"nextsignal/metrics"
)

type stubClient struct {
	response string
	err      error
	requests []llm.Request
}

func (c *stubClient) Generate(ctx context.Context, req llm.Request) (string, error) {
	c.requests = append(c.requests, req)
	return c.response, c.err
}

func testAnalyzer(client llm.Client) *Analyzer {
	return NewAnalyzer(client, resty.New(), config.NewPromptManager("", config.DefaultPromptConfig()), metrics.New())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeImageSuccess(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 10, 10))
	client := &stubClient{response: `{
		"category": "traffic",
		"severity": "high",
		"description": "overturned truck blocking two lanes",
		"impact": "major delays",
		"recommendations": "reroute traffic",
		"confidence": 0.92,
		"detectedObjects": ["truck", "debris"],
		"urgency": "immediate"
	}`}

	got := testAnalyzer(client).Analyze(context.Background(), []Item{{URL: srv.URL + "/a.png", Type: "image"}})
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	entry := got[0]
	if entry.Error != "" || entry.Finding == nil {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Finding.Category != report.CategoryTraffic || entry.Finding.Severity != report.SeverityHigh {
		t.Fatalf("unexpected finding: %+v", entry.Finding)
	}
	if entry.Finding.Confidence != 0.92 || entry.Finding.Urgency != report.UrgencyImmediate {
		t.Fatalf("unexpected finding: %+v", entry.Finding)
	}
	if len(client.requests) != 1 || len(client.requests[0].Image) == 0 {
		t.Fatalf("vision call missing image bytes")
	}
}

func TestAnalyzeImageParseFallback(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 10, 10))
	client := &stubClient{response: "the picture shows a road"}

	got := testAnalyzer(client).Analyze(context.Background(), []Item{{URL: srv.URL + "/a.png", Type: "image"}})
	f := got[0].Finding
	if f == nil {
		t.Fatalf("expected fallback finding, got error %q", got[0].Error)
	}
	if f.Category != report.CategoryInfrastructure || f.Severity != report.SeverityMedium {
		t.Fatalf("unexpected fallback: %+v", f)
	}
	if f.Confidence != 0.8 || f.Urgency != report.UrgencyRoutine {
		t.Fatalf("unexpected fallback: %+v", f)
	}
}

func TestAnalyzeVideoParseFallback(t *testing.T) {
	client := &stubClient{response: "no json here"}

	got := testAnalyzer(client).Analyze(context.Background(), []Item{{URL: "https://cdn/v.mp4", Type: "video"}})
	f := got[0].Finding
	if f == nil {
		t.Fatalf("expected fallback finding, got error %q", got[0].Error)
	}
	if f.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6", f.Confidence)
	}
	if len(client.requests) != 1 || client.requests[0].Image != nil {
		t.Fatalf("video path must send a text-only prompt")
	}
}

func TestAnalyzeFetchFailureRecordsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	got := testAnalyzer(&stubClient{}).Analyze(context.Background(), []Item{{URL: srv.URL + "/gone.jpg", Type: "image"}})
	entry := got[0]
	if entry.Error == "" || entry.Finding != nil {
		t.Fatalf("expected error placeholder, got %+v", entry)
	}
	if entry.MediaURL != srv.URL+"/gone.jpg" || entry.MediaType != "image" {
		t.Fatalf("entry lost url/type pairing: %+v", entry)
	}
}

func TestAnalyzeItemsIndependent(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 10, 10))
	client := &stubClient{err: errors.New("model unavailable")}

	items := []Item{
		{URL: srv.URL + "/a.png", Type: "image"},
		{URL: srv.URL + "/b.png", Type: "image"},
	}
	got := testAnalyzer(client).Analyze(context.Background(), items)
	if len(got) != 2 {
		t.Fatalf("expected one result per item, got %d", len(got))
	}
	for i, entry := range got {
		if entry.MediaURL != items[i].URL {
			t.Fatalf("result %d paired with %s, want %s", i, entry.MediaURL, items[i].URL)
		}
		if entry.Error == "" {
			t.Fatalf("result %d should carry the model error", i)
		}
	}
}

func TestDownscaleLargeImage(t *testing.T) {
	big := pngBytes(t, 2048, 512)
	small, mime := downscale(big, "image/png")
	if mime != "image/jpeg" {
		t.Fatalf("mime = %q, want re-encoded jpeg", mime)
	}
	img, _, err := image.Decode(bytes.NewReader(small))
	if err != nil {
		t.Fatalf("decode downscaled: %v", err)
	}
	if img.Bounds().Dx() > maxImageDimension || img.Bounds().Dy() > maxImageDimension {
		t.Fatalf("still oversized: %v", img.Bounds())
	}

	// Small images pass through untouched.
	orig := pngBytes(t, 10, 10)
	out, mime := downscale(orig, "image/png")
	if mime != "image/png" || !bytes.Equal(out, orig) {
		t.Fatalf("small image should pass through")
	}
}
