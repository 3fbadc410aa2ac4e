package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// readPointsFile reads points from path, or from stdin when path is "-".
func readPointsFile(path string, stdin io.Reader, header bool) (*mat.Dense, error) {
	if path == "-" {
		return readPoints(stdin, header)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening points file")
	}
	defer f.Close()
	return readPoints(f, header)
}

// readPoints parses one point per CSV row. All rows must have the same
// number of columns.
func readPoints(r io.Reader, header bool) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		data []float64
		dims int
		rows int
		line int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading CSV")
		}
		line++
		if header && line == 1 {
			continue
		}
		if rows == 0 {
			dims = len(rec)
		}
		for j, field := range rec {
			x, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %d", line, j+1)
			}
			data = append(data, x)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.New("no points in input")
	}
	return mat.NewDense(rows, dims, data), nil
}
