package tabular

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/xuri/excelize/v2"

	"newsetl/internal/news"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
)

// ParseFormat maps a config value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet, FormatXLSX:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown tabular format %q", s)
}

// ContentType is the object content type written with each format.
func (f Format) ContentType() string {
	switch f {
	case FormatParquet:
		return "application/octet-stream"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// ObjectKey is the destination key for one partition: {date}-news.{ext}.
func ObjectKey(date string, f Format) string {
	if f == "" {
		f = FormatCSV
	}
	return fmt.Sprintf("%s-news.%s", date, f)
}

// Export projects the whole stream, then encodes the table once.
func Export(ctx context.Context, articles iter.Seq2[news.Article, error], f Format) ([]byte, int, error) {
	t, err := Project(articles)
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	b, err := t.Encode(f)
	if err != nil {
		return nil, 0, err
	}
	return b, len(t.Rows), nil
}

func (t *Table) Encode(f Format) ([]byte, error) {
	switch f {
	case "", FormatCSV:
		return t.CSV()
	case FormatParquet:
		return t.Parquet()
	case FormatXLSX:
		return t.XLSX()
	}
	return nil, fmt.Errorf("unknown tabular format %q", f)
}

// CSV writes a header row and one row per article, no index column.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

// NewsRow is the parquet layout of a Table row.
type NewsRow struct {
	Title string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Topic string `parquet:"name=topic, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// Parquet writes the table through a temp file, the writer needs a seekable
// sink.
func (t *Table) Parquet() ([]byte, error) {
	localPath := filepath.Join(os.TempDir(), "news_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(NewsRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0 // uncompressed

	for _, r := range t.Rows {
		if err := pw.Write(NewsRow{Title: r[0], Topic: r[1]}); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

const xlsxSheet = "news"

func (t *Table) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	write := func(rowIdx int, values []string) error {
		cellRef, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(xlsxSheet, cellRef, &row)
	}

	if err := write(1, t.Columns); err != nil {
		return nil, fmt.Errorf("xlsx header: %w", err)
	}
	for i, r := range t.Rows {
		if err := write(i+2, r); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
