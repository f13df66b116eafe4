// Package export serializes validated table points.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
)

// Format is an output format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatTSV, FormatTable, FormatJSON}

// Stdout is the destination name meaning standard output.
const Stdout = "-"

// header is shared by csv and tsv, in the order ReadCSV expects.
var header = []string{"voltage", "frequency", "delta"}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (available: %v)", s, Formats)
}

// Exporter receives the validated points of a sweep, ordered by index.
// It may be called more than once with a growing set.
type Exporter interface {
	Export(points []device.Point) error
}

// Write serializes points to w.
func Write(w io.Writer, format Format, points []device.Point) error {
	switch format {
	case FormatCSV:
		return writeDelimited(w, ',', points)
	case FormatTSV:
		return writeDelimited(w, '\t', points)
	case FormatTable:
		return writeTable(w, points, colorEnabled(w))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if points == nil {
			points = []device.Point{}
		}
		return pkgerrors.Wrap(enc.Encode(points), "failed to encode points")
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeDelimited(w io.Writer, comma rune, points []device.Point) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	if err := cw.Write(header); err != nil {
		return pkgerrors.Wrap(err, "failed to write header")
	}
	for _, p := range points {
		record := []string{
			strconv.FormatUint(uint64(p.Voltage), 10),
			strconv.FormatUint(uint64(p.Effective()), 10),
			strconv.FormatInt(int64(p.Offset), 10),
		}
		if err := cw.Write(record); err != nil {
			return pkgerrors.Wrapf(err, "failed to write point %d", p.Index)
		}
	}

	cw.Flush()
	return pkgerrors.Wrap(cw.Error(), "failed to flush")
}

func writeTable(w io.Writer, points []device.Point, colored bool) error {
	titles := []any{"Index", "Voltage", "Base", "Offset", "Frequency"}
	if colored {
		bold := color.New(color.Bold)
		for i, t := range titles {
			titles[i] = bold.Sprint(t)
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header(titles...)
	for _, p := range points {
		offset := p.Offset.String()
		if colored && p.Offset > 0 {
			offset = color.GreenString(offset)
		}
		row := []string{
			strconv.Itoa(p.Index),
			p.Voltage.String(),
			p.Frequency.String(),
			offset,
			p.Effective().String(),
		}
		if err := table.Append(row); err != nil {
			return pkgerrors.Wrapf(err, "failed to append point %d", p.Index)
		}
	}

	return pkgerrors.Wrap(table.Render(), "failed to render table")
}

// colorEnabled reports whether w is a terminal and color is not disabled
// globally.
func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// Writer exports to an io.Writer.
type Writer struct {
	W      io.Writer
	Format Format
}

func (w *Writer) Export(points []device.Point) error {
	return Write(w.W, w.Format, points)
}

// File exports to a file, rewriting it on every export so that it always
// holds the latest complete set. The path Stdout writes to standard output.
type File struct {
	Path   string
	Format Format
}

func (f *File) Export(points []device.Point) error {
	if f.Path == "" || f.Path == Stdout {
		return Write(os.Stdout, f.Format, points)
	}

	fp, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.Path)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.Path)
		}
	}(fp)

	if err := Write(fp, f.Format, points); err != nil {
		return pkgerrors.Wrapf(err, "failed to export to %s", f.Path)
	}

	logrus.WithFields(logrus.Fields{
		"path":   f.Path,
		"format": f.Format,
		"points": len(points),
	}).Info("exported results")
	return nil
}
