package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// RenderMarkdown renders the Markdown report.
func RenderMarkdown(data Data) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Instagram crawl report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + data.RunID + "`"},
			{"Generated", data.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Records", strconv.Itoa(data.Summary.TotalRecords)},
			{"Failed tasks", strconv.Itoa(data.Summary.FailedTasks)},
		},
	})
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Count"},
		Rows: [][]string{
			{"Profiles", strconv.Itoa(data.Summary.Profiles)},
			{"Posts", strconv.Itoa(data.Summary.Posts)},
			{"Hashtags", strconv.Itoa(data.Summary.Hashtags)},
			{"Locations", strconv.Itoa(data.Summary.Locations)},
			{"Total reach", strconv.FormatInt(data.Summary.TotalFollowers, 10)},
			{"Total likes", strconv.FormatInt(data.Summary.TotalLikes, 10)},
		},
	})
	md.PlainText("")

	if data.Summary.NoData {
		md.H2("No data scraped")
		md.PlainText("")
		md.Note("The run finished without extracting any records. Check the start URLs, the search term, and any LOGIN_WALL_SCREENSHOT artifacts for this run.")
		md.PlainText("")
		return finish(md, &buf)
	}

	md.H2("Entity overview")
	md.PlainText("")
	rows := make([][]string, 0, len(data.Overview))
	for _, row := range data.Overview {
		rows = append(rows, []string{markdown.Link(row.Name, row.URL), string(row.Type), row.Metric})
	}
	md.Table(markdown.TableSet{Header: []string{"Name", "Type", "Metric"}, Rows: rows})
	md.PlainText("")

	md.H2("Distribution")
	md.PlainText("")
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Records by type"),
		piechart.WithShowData(true),
	)
	for _, s := range data.Distribution {
		if s.Count > 0 {
			chart.LabelAndIntValue(s.Label, uint64(s.Count))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
	if data.Summary.FailedTasks > 0 {
		md.Warningf("%d task(s) were abandoned after retries or a login wall.", data.Summary.FailedTasks)
		md.PlainText("")
	}
	return finish(md, &buf)
}

func finish(md *markdown.Markdown, buf *bytes.Buffer) ([]byte, error) {
	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("render markdown report: %w", err)
	}
	return buf.Bytes(), nil
}
