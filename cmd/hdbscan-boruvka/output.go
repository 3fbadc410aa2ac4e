package main

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	hdbscan "github.com/TrevorS/hdbscan-boruvka"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// result is the output document. Rows follow scipy's linkage layout
// [left, right, distance, size] and the spanning tree layout
// [source, target, weight].
type result struct {
	SingleLinkageTree [][4]float64 `json:"single_linkage_tree" yaml:"single_linkage_tree"`
	MinSpanningTree   [][3]float64 `json:"min_spanning_tree,omitempty" yaml:"min_spanning_tree,omitempty"`
}

func writeResult(w io.Writer, format string, tree hdbscan.SingleLinkageTree, mst []hdbscan.Edge) error {
	doc := result{SingleLinkageTree: tree.Rows()}
	if mst != nil {
		doc.MinSpanningTree = hdbscan.EdgeRows(mst)
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.Newf("unknown output format %q (want json or yaml)", format)
	}
}
