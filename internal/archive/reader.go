// Package archive locates and decodes the per-date F&O bhavcopy archives.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/nse-analytics/internal/models"
)

// RawRow is one source row keyed by column header. Values are untouched
// strings; normalization happens downstream.
type RawRow map[string]string

// Reader locates the archive for a trading date under a source directory and
// streams its tabular content.
type Reader struct {
	sourceDir string
	log       *logrus.Entry
}

// NewReader creates a reader over the given source directory.
func NewReader(sourceDir string, log *logrus.Logger) *Reader {
	return &Reader{
		sourceDir: sourceDir,
		log:       log.WithField("component", "archive"),
	}
}

// candidateNames returns the archive file names the exchange has used for a
// date, newest vintage first.
func candidateNames(date time.Time) []string {
	udiff := fmt.Sprintf("BhavCopy_NSE_FO_0_0_0_%s_F_0000.csv.zip", date.Format("20060102"))
	legacy := fmt.Sprintf("fo%sbhav.csv.zip", strings.ToUpper(date.Format("02Jan2006")))
	return []string{udiff, legacy}
}

// Locate resolves the single archive file for the date. A date with no
// archive yields ErrMissingSource.
func (r *Reader) Locate(date time.Time) (string, error) {
	for _, name := range candidateNames(date) {
		path := filepath.Join(r.sourceDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	// Fall back to any zip embedding the 8-digit date, in case the
	// exchange shifts the surrounding tokens again.
	pattern := filepath.Join(r.sourceDir, "*"+date.Format("20060102")+"*.zip")
	matches, err := filepath.Glob(pattern)
	if err == nil && len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", models.NewCorruptSourceError(date,
			fmt.Sprintf("%d archives match %s, expected exactly one", len(matches), pattern))
	}

	return "", models.NewMissingSourceError(date, "no archive in "+r.sourceDir)
}

// Open locates and decompresses the date's archive and returns a one-shot
// row stream. The caller must Close the stream on all paths.
func (r *Reader) Open(date time.Time) (*Rows, error) {
	path, err := r.Locate(date)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, models.NewCorruptSourceError(date, fmt.Sprintf("open %s: %v", path, err))
	}

	entry := tabularEntry(zr)
	if entry == nil {
		_ = zr.Close()
		return nil, models.NewCorruptSourceError(date, "archive holds no csv entry")
	}

	rc, err := entry.Open()
	if err != nil {
		_ = zr.Close()
		return nil, models.NewCorruptSourceError(date, fmt.Sprintf("decompress %s: %v", entry.Name, err))
	}

	cr := csv.NewReader(rc)
	cr.TrimLeadingSpace = true
	// UDiFF and legacy files both occasionally pad short rows; tolerate it
	// and let the normalizer decide per field.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		_ = rc.Close()
		_ = zr.Close()
		return nil, models.NewCorruptSourceError(date, fmt.Sprintf("read header: %v", err))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	r.log.WithFields(logrus.Fields{
		"date":    date.Format("2006-01-02"),
		"archive": filepath.Base(path),
		"columns": len(header),
	}).Debug("Archive opened")

	return &Rows{
		date:    date,
		header:  header,
		csv:     cr,
		closers: []io.Closer{rc, zr},
	}, nil
}

// tabularEntry picks the csv member of the archive.
func tabularEntry(zr *zip.ReadCloser) *zip.File {
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			return f
		}
	}
	return nil
}

// Rows is a finite, one-shot stream of raw rows. Restarting requires
// reopening the reader.
type Rows struct {
	date    time.Time
	header  []string
	csv     *csv.Reader
	closers []io.Closer
	current RawRow
	err     error
	done    bool
}

// Header returns the column names in source order.
func (rows *Rows) Header() []string {
	return rows.header
}

// Next advances to the next row, returning false at end of input or on error.
func (rows *Rows) Next() bool {
	if rows.done {
		return false
	}

	rec, err := rows.csv.Read()
	if err == io.EOF {
		rows.done = true
		return false
	}
	if err != nil {
		rows.err = models.NewCorruptSourceError(rows.date, err.Error())
		rows.done = true
		return false
	}

	row := make(RawRow, len(rows.header))
	for i, name := range rows.header {
		if i < len(rec) {
			row[name] = strings.TrimSpace(rec[i])
		}
	}
	rows.current = row
	return true
}

// Row returns the row read by the last successful Next.
func (rows *Rows) Row() RawRow {
	return rows.current
}

// Err returns the first error hit while streaming, if any.
func (rows *Rows) Err() error {
	return rows.err
}

// Close releases the decompression resources. Safe to call more than once.
func (rows *Rows) Close() error {
	var first error
	for _, c := range rows.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	rows.closers = nil
	rows.done = true
	return first
}
