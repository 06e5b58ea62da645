package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/ecomlake/internal/dataframe"
)

// Read reads Parquet data and returns a DataFrame.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	// pqarrow needs random access, so the stream is buffered.
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	props := pqarrow.ArrowReadProperties{BatchSize: int64(r.options.BatchSize)}
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data), parquet.NewReaderProperties(r.mem), props, r.mem)
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	return r.arrowTableToDataFrame(table)
}

// arrowTableToDataFrame converts an Arrow table to a DataFrame, flattening
// chunked columns into single arrays.
func (r *ParquetReader) arrowTableToDataFrame(table arrow.Table) (*dataframe.DataFrame, error) {
	var seriesList []dataframe.ISeries
	schema := table.Schema()

	for i := 0; i < int(table.NumCols()); i++ {
		field := schema.Field(i)
		arr, err := r.flatten(table.Column(i), field.Type)
		if err != nil {
			for _, s := range seriesList {
				s.Release()
			}
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		s, err := dataframe.FromArray(field.Name, arr)
		arr.Release()
		if err != nil {
			for _, s := range seriesList {
				s.Release()
			}
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		seriesList = append(seriesList, s)
	}

	return dataframe.NewWithAllocator(r.mem, seriesList...), nil
}

func (r *ParquetReader) flatten(column *arrow.Column, dt arrow.DataType) (arrow.Array, error) {
	chunks := column.Data().Chunks()
	switch len(chunks) {
	case 0:
		return array.MakeArrayOfNull(r.mem, dt, 0), nil
	case 1:
		chunks[0].Retain()
		return chunks[0], nil
	default:
		return array.Concatenate(chunks, r.mem)
	}
}

// Write writes the DataFrame to Parquet format.
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	compression, err := ParseCompression(w.options.Compression)
	if err != nil {
		return err
	}

	rec := df.ToRecord()
	defer rec.Release()

	batchSize := int64(w.options.BatchSize)
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression),
		parquet.WithBatchSize(batchSize),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(memory.DefaultAllocator),
		pqarrow.WithStoreSchema(),
	)

	// The parquet file writer closes its sink; the caller owns w.writer.
	writer, err := pqarrow.NewFileWriter(rec.Schema(), nopCloser{w.writer}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

// ParseCompression maps a codec name to its parquet compression.
func ParseCompression(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet compression %q", name)
	}
}

type nopCloser struct {
	io.Writer
}
