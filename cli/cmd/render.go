package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"sigs.k8s.io/yaml"

	"ocm.software/open-component-model/bindings/go/maven/cache/persistent"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

const (
	FlagOutput = "output"

	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"
)

// packageView is the serialized form of a package in command output.
type packageView struct {
	Coordinate string            `json:"coordinate"`
	Name       string            `json:"name,omitempty"`
	URL        string            `json:"url"`
	Checksums  map[string]string `json:"checksums,omitempty"`
	Verified   *bool             `json:"verified,omitempty"`
}

type failureView struct {
	From       string `json:"from"`
	Coordinate string `json:"coordinate"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

type closureView struct {
	Root     string        `json:"root"`
	Packages []packageView `json:"packages"`
	Failures []failureView `json:"failures,omitempty"`
}

type cacheRecordView struct {
	Coordinate string    `json:"coordinate"`
	URL        string    `json:"url"`
	Expires    time.Time `json:"expires"`
	Expired    bool      `json:"expired"`
}

func newPackageView(pkg *resolver.Package) packageView {
	view := packageView{
		Coordinate: pkg.Coordinate().String(),
		URL:        pkg.URL(),
		Checksums:  pkg.Checksums(),
	}
	if name := pkg.Name(); name != view.Coordinate {
		view.Name = name
	}
	return view
}

func newClosureView(closure *resolver.Closure) closureView {
	view := closureView{Root: closure.Root.Coordinate().String()}
	for _, pkg := range closure.Packages {
		view.Packages = append(view.Packages, newPackageView(pkg))
	}
	for _, f := range closure.Failures {
		view.Failures = append(view.Failures, failureView{
			From:       f.From.String(),
			Coordinate: f.Coordinate.String(),
			Kind:       string(f.Kind),
			Error:      f.Err.Error(),
		})
	}
	return view
}

func renderClosure(w io.Writer, format string, closure *resolver.Closure) error {
	view := newClosureView(closure)
	switch format {
	case OutputFormatJSON:
		return encodeJSON(w, view)
	case OutputFormatYAML:
		return encodeYAML(w, view)
	case OutputFormatTable:
		renderPackageTable(w, view.Packages, false)
		if len(view.Failures) > 0 {
			t := newTable(w)
			t.AppendHeader(table.Row{"Dependency", "Declared By", "Failure"})
			for _, f := range view.Failures {
				t.AppendRow(table.Row{f.Coordinate, f.From, f.Kind})
			}
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 2, AutoMerge: true},
			})
			t.Render()
		}
		return nil
	default:
		return fmt.Errorf("invalid output format %q", format)
	}
}

func renderPackages(w io.Writer, format string, packages []packageView, verified bool) error {
	switch format {
	case OutputFormatJSON:
		return encodeJSON(w, packages)
	case OutputFormatYAML:
		return encodeYAML(w, packages)
	case OutputFormatTable:
		renderPackageTable(w, packages, verified)
		return nil
	default:
		return fmt.Errorf("invalid output format %q", format)
	}
}

func renderCacheRecords(w io.Writer, format string, cache *persistent.Cache, records []persistent.Record) error {
	views := make([]cacheRecordView, 0, len(records))
	for _, r := range records {
		views = append(views, cacheRecordView{
			Coordinate: r.Coordinate.String(),
			URL:        r.URL,
			Expires:    r.Expires.UTC(),
			Expired:    cache.IsExpired(r.Entry),
		})
	}
	switch format {
	case OutputFormatJSON:
		return encodeJSON(w, views)
	case OutputFormatYAML:
		return encodeYAML(w, views)
	case OutputFormatTable:
		t := newTable(w)
		t.AppendHeader(table.Row{"Coordinate", "URL", "Expires"})
		for _, v := range views {
			expires := v.Expires.Format(time.RFC3339)
			if v.Expired {
				expires += " (expired)"
			}
			t.AppendRow(table.Row{v.Coordinate, v.URL, expires})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("invalid output format %q", format)
	}
}

func renderPackageTable(w io.Writer, packages []packageView, verified bool) {
	t := newTable(w)
	header := table.Row{"Coordinate", "Name", "URL"}
	if verified {
		header = append(header, "Verified")
	}
	t.AppendHeader(header)
	for _, p := range packages {
		row := table.Row{p.Coordinate, p.Name, p.URL}
		if verified && p.Verified != nil {
			row = append(row, *p.Verified)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output as json failed: %w", err)
	}
	return nil
}

func encodeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output as yaml failed: %w", err)
	}
	_, err = w.Write(data)
	return err
}
