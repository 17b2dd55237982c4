// Package report renders the end-of-run artifacts: an HTML report, a
// Markdown report and the JSON dataset. A run without records still gets a
// complete set of artifacts describing the empty result.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// Artifact keys, scoped per run by crawler.RunContext.ArtifactPath.
const (
	KeyHTML     = "REPORT"
	KeyMarkdown = "REPORT_MD"
	KeyDataset  = "DATASET"
)

// OverviewLimit caps the entity overview table.
const OverviewLimit = 15

// Row is one line of the entity overview.
type Row struct {
	Name       string
	Type       crawler.RecordType
	Metric     string
	URL        string
	ProfilePic string
}

// Slice is one bucket of the type distribution.
type Slice struct {
	Label   string
	Count   int
	Percent float64
}

// Data is everything the renderers need.
type Data struct {
	RunID        string
	GeneratedAt  time.Time
	Summary      crawler.Summary
	Overview     []Row
	Distribution []Slice
}

// Artifacts holds the URIs of the written artifacts. Empty fields were not written.
type Artifacts struct {
	HTML     string
	Markdown string
	Dataset  string
}

// Summarize aggregates records. Summary records in the input are ignored.
func Summarize(records []crawler.Record, failed int) crawler.Summary {
	var s crawler.Summary
	for _, rec := range records {
		switch rec.Type {
		case crawler.RecordProfile:
			s.Profiles++
			if rec.Profile != nil {
				s.TotalFollowers += rec.Profile.FollowersCount
			}
		case crawler.RecordPost:
			s.Posts++
			if rec.Post != nil {
				s.TotalLikes += rec.Post.LikesCount
			}
		case crawler.RecordHashtag:
			s.Hashtags++
		case crawler.RecordLocation:
			s.Locations++
		default:
			continue
		}
		s.TotalRecords++
	}
	s.FailedTasks = failed
	s.NoData = s.TotalRecords == 0
	return s
}

// Build assembles renderer input from records.
func Build(run crawler.RunContext, now time.Time, records []crawler.Record, failed int) Data {
	summary := Summarize(records, failed)
	data := Data{RunID: run.ID, GeneratedAt: now, Summary: summary}
	for _, rec := range records {
		if rec.Type == crawler.RecordSummary {
			continue
		}
		if len(data.Overview) == OverviewLimit {
			break
		}
		row := Row{Name: rec.DisplayName(), Type: rec.Type, Metric: rec.Metric(), URL: rec.URL}
		if rec.Profile != nil {
			row.ProfilePic = rec.Profile.ProfilePic
		}
		data.Overview = append(data.Overview, row)
	}
	if !summary.NoData {
		total := float64(summary.TotalRecords)
		for _, b := range []struct {
			label string
			count int
		}{
			{"Profiles", summary.Profiles},
			{"Posts", summary.Posts},
			{"Hashtags", summary.Hashtags},
			{"Locations", summary.Locations},
		} {
			data.Distribution = append(data.Distribution, Slice{
				Label:   b.label,
				Count:   b.count,
				Percent: float64(b.count) * 100 / total,
			})
		}
	}
	return data
}

// Generator writes run artifacts to a blob store.
type Generator struct {
	store   crawler.BlobStore
	run     crawler.RunContext
	clock   crawler.Clock
	enabled bool
	logger  *zap.Logger
}

// NewGenerator constructs a Generator. When enabled is false only the
// dataset is written.
func NewGenerator(store crawler.BlobStore, run crawler.RunContext, clock crawler.Clock, enabled bool, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, run: run, clock: clock, enabled: enabled, logger: logger}
}

// Generate writes the dataset and, when enabled, both reports.
func (g *Generator) Generate(ctx context.Context, records []crawler.Record, failed int) (Artifacts, error) {
	now := g.clock.Now()
	data := Build(g.run, now, records, failed)
	var out Artifacts

	dataset, err := Dataset(g.run, now, data.Summary, records)
	if err != nil {
		return out, err
	}
	if out.Dataset, err = g.put(ctx, KeyDataset, "application/json", dataset); err != nil {
		return out, err
	}
	if !g.enabled {
		g.logger.Info("report disabled, dataset written", zap.String("dataset", out.Dataset))
		return out, nil
	}

	html, err := RenderHTML(data)
	if err != nil {
		return out, err
	}
	if out.HTML, err = g.put(ctx, KeyHTML, "text/html; charset=utf-8", html); err != nil {
		return out, err
	}
	md, err := RenderMarkdown(data)
	if err != nil {
		return out, err
	}
	if out.Markdown, err = g.put(ctx, KeyMarkdown, "text/markdown; charset=utf-8", md); err != nil {
		return out, err
	}

	g.logger.Info("report written",
		zap.String("report", out.HTML),
		zap.Int("records", data.Summary.TotalRecords),
		zap.Bool("no_data", data.Summary.NoData),
	)
	return out, nil
}

func (g *Generator) put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	uri, err := g.store.PutObject(ctx, g.run.ArtifactPath(key), contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return uri, nil
}

// Dataset encodes records as a JSON array led by a summary record.
func Dataset(run crawler.RunContext, now time.Time, summary crawler.Summary, records []crawler.Record) ([]byte, error) {
	out := make([]crawler.Record, 0, len(records)+1)
	out = append(out, crawler.Record{
		Type:      crawler.RecordSummary,
		URL:       run.ReportURL,
		ScrapedAt: now,
		ReportURL: run.ReportURL,
		Summary:   &summary,
	})
	for _, rec := range records {
		if rec.Type != crawler.RecordSummary {
			out = append(out, rec)
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return data, nil
}
