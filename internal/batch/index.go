package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"normalmap-audit/internal/report"
)

// hiddenFields are report fields the viewer does not give a column.
var hiddenFields = map[string]bool{
	report.KeyImage:          true,
	report.KeyOutputChannelR: true,
	report.KeyOutputChannelG: true,
	report.KeyOutputChannelB: true,
	report.KeyOutputName:     true,
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Normal map audit</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 2px 4px; vertical-align: top; white-space: pre; }
</style>
</head>
<body>
<table id="report">
<tr id="headers"><th>filename</th><th>normalmap</th><th>heightmap</th><th>report</th><th>errors</th>
{{- range .Fields}}<th>{{.}}</th>{{end}}</tr>
{{- range .Rows}}
<tr><th>{{.Filename}}</th>
<td><a href="{{.Artifacts.Norm}}"><img src="{{.Artifacts.NormThumb}}"></a></td>
<td>{{if .Artifacts.Height}}<a href="{{.Artifacts.Height}}"><img src="{{.Artifacts.HeightThumb}}"></a>{{end}}</td>
<td><a href="{{.Artifacts.Preview}}"><img src="{{.Artifacts.PreviewThumb}}"></a></td>
<td>{{.Errors}}</td>
{{- range .Values}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
</body>
</html>
`))

type indexRow struct {
	Filename  string
	Artifacts Artifacts
	Errors    string
	Values    []string
}

type indexData struct {
	Fields []string
	Rows   []indexRow
}

// columns returns the sorted union of displayable fields.
func columns(items []Item) []string {
	seen := map[string]bool{}
	for _, it := range items {
		if it.Report == nil {
			continue
		}
		for _, f := range it.Report.Fields {
			if !hiddenFields[f.Key] && !strings.HasPrefix(f.Key, report.ErrorPrefix) {
				seen[f.Key] = true
			}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func buildIndex(items []Item) indexData {
	data := indexData{Fields: columns(items)}
	for _, it := range items {
		if it.Report == nil {
			continue
		}
		errs := it.Report.Errors()
		for i, e := range errs {
			errs[i] = strings.TrimPrefix(e, report.ErrorPrefix)
		}
		row := indexRow{
			Filename:  it.Path,
			Artifacts: it.Artifacts,
			Errors:    strings.Join(errs, "\n"),
		}
		for _, f := range data.Fields {
			v, _ := it.Report.Get(f)
			row.Values = append(row.Values, formatValue(v))
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// formatValue renders a report value for a table cell: numbers with three
// significant digits, true as "x", null and missing as empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "x"
		}
		return ""
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return formatPrecision(x, 3)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// formatPrecision formats v with the given number of significant digits,
// switching to exponent notation for exponents below -6 or at least digits.
func formatPrecision(v float64, digits int) string {
	if v == 0 {
		return strconv.FormatFloat(0, 'f', digits-1, 64)
	}
	s := strconv.FormatFloat(v, 'e', digits-1, 64)
	i := strings.LastIndexByte(s, 'e')
	exp, _ := strconv.Atoi(s[i+1:])
	if exp < -6 || exp >= digits {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return s[:i] + "e" + sign + strconv.Itoa(exp)
	}
	return strconv.FormatFloat(v, 'f', digits-1-exp, 64)
}

func writeIndex(path string, items []Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := indexTemplate.Execute(w, buildIndex(items)); err != nil {
		f.Close()
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeReports writes one compact JSON report per line in input order.
func writeReports(path string, items []Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, it := range items {
		if it.Report == nil {
			continue
		}
		line, err := json.Marshal(it.Report)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to encode report of %s: %w", it.Path, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
