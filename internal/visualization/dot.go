// Package visualization renders reaction networks as Graphviz DOT, JSON
// and HTML.
//
// The network is drawn as a bipartite graph: species are ellipses,
// reactions are boxes, and edges run from reactants to a reaction and
// from the reaction to its products.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/nvandessel/plexsim/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// expansionColors maps species expansion states to DOT colors.
var expansionColors = map[string]string{
	"fully-expanded": "steelblue",
	"notified":       "goldenrod",
	"unexplored":     "lightgray",
}

// Options select what is drawn.
type Options struct {
	// MinPopulation hides species below it, and every reaction that
	// touches a hidden species. Zero draws everything.
	MinPopulation int64
	// MaxLabel truncates species names. Zero means 40.
	MaxLabel int
}

// view is the filtered network to draw.
type view struct {
	species   []network.SpeciesInfo
	reactions []network.ReactionInfo
}

func filter(snap network.Snapshot, opts Options) view {
	if opts.MinPopulation <= 0 {
		return view{species: snap.Species, reactions: snap.Reactions}
	}
	var v view
	shown := make(map[string]bool)
	for _, sp := range snap.Species {
		if sp.Population >= opts.MinPopulation {
			shown[sp.Tag] = true
			v.species = append(v.species, sp)
		}
	}
	for _, r := range snap.Reactions {
		all := true
		for _, t := range append(append([]network.TermInfo(nil), r.Reactants...), r.Products...) {
			all = all && shown[t.Species]
		}
		if all {
			v.reactions = append(v.reactions, r)
		}
	}
	return v
}

func (o Options) maxLabel() int {
	if o.MaxLabel <= 0 {
		return 40
	}
	return o.MaxLabel
}

// RenderDOT produces a Graphviz DOT representation of the network.
func RenderDOT(snap network.Snapshot, opts Options) string {
	v := filter(snap, opts)

	var b strings.Builder
	b.WriteString("digraph plexsim {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, sp := range v.species {
		color := expansionColors[sp.Expansion]
		if color == "" {
			color = "white"
		}
		label := fmt.Sprintf("%s\\n%d", truncate(sp.Name, opts.maxLabel()), sp.Population)
		fmt.Fprintf(&b, "  %q [shape=ellipse, label=%q, fillcolor=%q, tooltip=\"family=%d depth=%d\"];\n",
			sp.Tag, label, color, sp.Family, sp.Depth)
	}
	b.WriteString("\n")

	for _, r := range v.reactions {
		fmt.Fprintf(&b, "  %q [shape=box, fontsize=9, label=%q, fillcolor=\"white\"];\n",
			r.Tag, fmt.Sprintf("%s\\nk=%g", r.Generator, r.Rate))
		for _, t := range r.Reactants {
			b.WriteString(dotEdge(t.Species, r.Tag, t.Mult))
		}
		for _, t := range r.Products {
			b.WriteString(dotEdge(r.Tag, t.Species, t.Mult))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func dotEdge(from, to string, mult int) string {
	if mult > 1 {
		return fmt.Sprintf("  %q -> %q [label=\"%d\"];\n", from, to, mult)
	}
	return fmt.Sprintf("  %q -> %q;\n", from, to)
}

// RenderJSON produces a JSON graph with nodes and edges arrays. Species
// and reaction nodes are told apart by their "type".
func RenderJSON(snap network.Snapshot, opts Options) map[string]any {
	v := filter(snap, opts)

	nodes := make([]map[string]any, 0, len(v.species)+len(v.reactions))
	for _, sp := range v.species {
		nodes = append(nodes, map[string]any{
			"id":         sp.Tag,
			"type":       "species",
			"name":       sp.Name,
			"family":     sp.Family,
			"population": sp.Population,
			"expansion":  sp.Expansion,
		})
	}
	edges := make([]map[string]any, 0)
	for _, r := range v.reactions {
		nodes = append(nodes, map[string]any{
			"id":        r.Tag,
			"type":      "reaction",
			"generator": r.Generator,
			"rate":      r.Rate,
		})
		for _, t := range r.Reactants {
			edges = append(edges, map[string]any{"source": t.Species, "target": r.Tag, "mult": t.Mult})
		}
		for _, t := range r.Products {
			edges = append(edges, map[string]any{"source": r.Tag, "target": t.Species, "mult": t.Mult})
		}
	}

	return map[string]any{
		"nodes":          nodes,
		"edges":          edges,
		"node_count":     len(nodes),
		"edge_count":     len(edges),
		"species_count":  len(v.species),
		"reaction_count": len(v.reactions),
		"families":       len(snap.Families),
	}
}

// htmlTemplateData holds data passed to the HTML template. GraphJSON is
// pre-escaped with json.HTMLEscape so it is safe inside <script>.
type htmlTemplateData struct {
	Title     string
	Species   []network.SpeciesInfo
	Reactions []network.ReactionInfo
	Families  int
	GraphJSON template.JS
}

var pageTemplate = template.Must(template.New("graph").Funcs(template.FuncMap{
	"terms": func(ts []network.TermInfo) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			if t.Mult > 1 {
				parts[i] = fmt.Sprintf("%d %s", t.Mult, t.Species)
			} else {
				parts[i] = t.Species
			}
		}
		return strings.Join(parts, " + ")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
td, th { border: 1px solid #ccc; padding: 2px 8px; text-align: left; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Families}} families, {{len .Species}} species, {{len .Reactions}} reactions</p>
<h2>Species</h2>
<table>
<tr><th>tag</th><th>name</th><th>family</th><th>population</th><th>expansion</th></tr>
{{range .Species}}<tr><td>{{.Tag}}</td><td>{{.Name}}</td><td>{{.Family}}</td><td>{{.Population}}</td><td>{{.Expansion}}</td></tr>
{{end}}</table>
<h2>Reactions</h2>
<table>
<tr><th>tag</th><th>generator</th><th>reaction</th><th>rate</th></tr>
{{range .Reactions}}<tr><td>{{.Tag}}</td><td>{{.Generator}}</td><td>{{terms .Reactants}} &rarr; {{terms .Products}}</td><td>{{.Rate}}</td></tr>
{{end}}</table>
<script>const graph = {{.GraphJSON}};</script>
</body>
</html>
`))

// RenderHTML produces a self-contained HTML page listing the network, with
// the JSON graph embedded for scripting.
func RenderHTML(snap network.Snapshot, title string, opts Options) ([]byte, error) {
	v := filter(snap, opts)

	graphJSON, err := json.Marshal(RenderJSON(snap, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	var buf bytes.Buffer
	data := htmlTemplateData{
		Title:     title,
		Species:   v.species,
		Reactions: v.reactions,
		Families:  len(snap.Families),
		GraphJSON: template.JS(escaped.String()), // #nosec G203
	}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
