package report

import (
	"bytes"
	"fmt"
	"html/template"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>gramcrawl report {{.RunID}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #0f172a; color: #f8fafc; margin: 0; padding: 2rem; }
.stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
.stat { background: #1e293b; border-radius: 12px; padding: 1rem; }
.stat .value { font-size: 1.8rem; font-weight: 700; }
.stat .label { color: #94a3b8; font-size: .85rem; }
.card { background: #1e293b; border-radius: 12px; padding: 1.5rem; margin-bottom: 1.5rem; }
table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: .5rem; border-bottom: 1px solid #334155; }
img.pic { width: 32px; height: 32px; border-radius: 50%; vertical-align: middle; margin-right: .5rem; }
.bar { background: #8e2de2; height: .6rem; border-radius: 4px; }
.empty { color: #f59e0b; }
</style>
</head>
<body>
<h1>Instagram crawl report</h1>
<p>Run <code>{{.RunID}}</code> generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<div class="stats">
<div class="stat"><div class="value">{{.Summary.Profiles}}</div><div class="label">Profiles</div></div>
<div class="stat"><div class="value">{{.Summary.Posts}}</div><div class="label">Posts</div></div>
<div class="stat"><div class="value">{{.Summary.Hashtags}}</div><div class="label">Hashtags</div></div>
<div class="stat"><div class="value">{{.Summary.Locations}}</div><div class="label">Locations</div></div>
<div class="stat"><div class="value">{{.Summary.TotalFollowers}}</div><div class="label">Total reach</div></div>
<div class="stat"><div class="value">{{.Summary.TotalLikes}}</div><div class="label">Total likes</div></div>
<div class="stat"><div class="value">{{.Summary.FailedTasks}}</div><div class="label">Failed tasks</div></div>
</div>
{{if .Summary.NoData}}
<div class="card empty">
<h2>No data scraped</h2>
<p>The run finished without extracting any records. Check the start URLs, the search term, and any LOGIN_WALL_SCREENSHOT artifacts for this run.</p>
</div>
{{else}}
<div class="card">
<h2>Entity overview</h2>
<table>
<thead><tr><th>Name</th><th>Type</th><th>Metric</th></tr></thead>
<tbody>
{{range .Overview}}<tr><td>{{if .ProfilePic}}<img class="pic" src="{{.ProfilePic}}" alt="">{{end}}<a href="{{.URL}}">{{.Name}}</a></td><td>{{.Type}}</td><td>{{.Metric}}</td></tr>
{{end}}</tbody>
</table>
</div>
<div class="card">
<h2>Distribution</h2>
<table>
{{range .Distribution}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td style="width:60%"><div class="bar" style="width: {{printf "%.1f" .Percent}}%"></div></td></tr>
{{end}}</table>
</div>
{{end}}
</body>
</html>
`))

// RenderHTML renders the standalone HTML report.
func RenderHTML(data Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}
