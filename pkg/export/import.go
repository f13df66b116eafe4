package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/vftune/pkg/device"
)

// ReadCSV reads points written in FormatCSV. Frequency is recovered as the
// base frequency, Index is the row number.
func ReadCSV(r io.Reader) ([]device.Point, error) {
	return readDelimited(r, ',')
}

// ReadFile reads a csv or tsv file, chosen by extension.
func ReadFile(path string) ([]device.Point, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open file %s", path)
	}
	defer fp.Close()

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}

	points, err := readDelimited(fp, comma)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	return points, nil
}

func readDelimited(r io.Reader, comma rune) ([]device.Point, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read header")
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(first[i]), name) {
			return nil, fmt.Errorf("unexpected column %q, want %v", first[i], header)
		}
	}

	var points []device.Point
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to read record")
		}

		p, err := parseRecord(record)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, pkgerrors.Wrapf(err, "line %d", line)
		}
		p.Index = len(points)
		points = append(points, p)
	}

	return points, nil
}

func parseRecord(record []string) (device.Point, error) {
	voltage, err := strconv.ParseUint(record[0], 10, 32)
	if err != nil {
		return device.Point{}, pkgerrors.Wrap(err, "invalid voltage")
	}
	frequency, err := strconv.ParseUint(record[1], 10, 32)
	if err != nil {
		return device.Point{}, pkgerrors.Wrap(err, "invalid frequency")
	}
	delta, err := strconv.ParseInt(record[2], 10, 32)
	if err != nil {
		return device.Point{}, pkgerrors.Wrap(err, "invalid delta")
	}

	offset := device.KilohertzDelta(delta)
	effective := device.Kilohertz(frequency)
	return device.Point{
		Voltage:   device.Microvolts(voltage),
		Frequency: effective.Add(-offset),
		Offset:    offset,
	}, nil
}
