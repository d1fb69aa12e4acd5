package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/tablechat/tablechat/internal/dataset"
)

const parquetReadBatch = 256

// parseParquet reads a parquet file with one column per leaf; nested leaves
// are named by their dotted path and repeated leaves keep their first value.
func parseParquet(body []byte) (dataset.Dataset, error) {
	file, err := parquet.OpenFile(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("open parquet: %w", err)
	}

	paths := file.Schema().Columns()
	if len(paths) == 0 {
		return dataset.Dataset{}, ErrNoHeader
	}
	raw := make([]string, len(paths))
	for i, path := range paths {
		raw[i] = strings.Join(path, ".")
	}

	out := dataset.Dataset{Columns: UniqueHeaders(raw), Rows: make([][]any, 0, file.NumRows())}
	buffer := make([]parquet.Row, parquetReadBatch)
	for _, group := range file.RowGroups() {
		rows := group.Rows()
		for {
			n, err := rows.ReadRows(buffer)
			for _, row := range buffer[:n] {
				out.Rows = append(out.Rows, parquetRow(row, len(paths)))
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return dataset.Dataset{}, fmt.Errorf("read parquet rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return dataset.Dataset{}, fmt.Errorf("close parquet rows: %w", err)
		}
	}
	return out, nil
}

func parquetRow(row parquet.Row, width int) []any {
	values := make([]any, width)
	seen := make([]bool, width)
	for _, value := range row {
		column := value.Column()
		if column < 0 || column >= width || seen[column] {
			continue
		}
		seen[column] = true
		values[column] = parquetValue(value)
	}
	return values
}

func parquetValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Boolean:
		return value.Boolean()
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(value.ByteArray())
	default:
		return value.String()
	}
}
