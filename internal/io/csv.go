package io

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/parallel"
	"github.com/paveg/ecomlake/internal/series"
)

// ColumnType is the type inferred for a CSV column.
type ColumnType int

const (
	StringColumn ColumnType = iota
	BoolColumn
	IntColumn
	FloatColumn
	TimestampColumn
)

// Read reads CSV data and returns a DataFrame
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	// Create CSV reader
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace
	csvReader.FieldsPerRecord = -1
	csvReader.ReuseRecord = false

	// Read all records
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	// Handle empty CSV
	if len(records) == 0 {
		return dataframe.NewWithAllocator(r.mem), nil
	}

	var headers []string
	var dataRows [][]string

	if r.options.Header {
		headers = records[0]
		dataRows = records[1:]
	} else {
		// Generate default column names
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("_c%d", i)
		}
		dataRows = records
	}

	if dup := duplicateHeader(headers); dup != "" {
		return nil, fmt.Errorf("reading CSV: duplicate column %q", dup)
	}

	// Transpose data to work with columns. Short rows are padded with nulls.
	columns := make([][]string, len(headers))
	valid := make([][]bool, len(headers))
	for i := range headers {
		columns[i] = make([]string, len(dataRows))
		valid[i] = make([]bool, len(dataRows))
		for j, row := range dataRows {
			if i < len(row) && row[i] != "" {
				columns[i][j] = row[i]
				valid[i][j] = true
			}
		}
	}

	build := func(i int, header string) (dataframe.ISeries, error) {
		s, err := r.createSeries(header, columns[i], valid[i])
		if err != nil {
			return nil, fmt.Errorf("creating series for column %s: %w", header, err)
		}
		return s, nil
	}

	var seriesList []dataframe.ISeries
	if r.options.Pool != nil {
		seriesList, err = parallel.TryProcessIndexed(r.options.Pool, headers, build)
	} else {
		seriesList = make([]dataframe.ISeries, len(headers))
		for i, header := range headers {
			if seriesList[i], err = build(i, header); err != nil {
				break
			}
		}
	}
	if err != nil {
		for _, s := range seriesList {
			if s != nil {
				s.Release()
			}
		}
		return nil, err
	}

	return dataframe.NewWithAllocator(r.mem, seriesList...), nil
}

func duplicateHeader(headers []string) string {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if seen[h] {
			return h
		}
		seen[h] = true
	}
	return ""
}

// createSeries builds a series of the inferred type; invalid slots are null.
func (r *CSVReader) createSeries(name string, data []string, valid []bool) (dataframe.ISeries, error) {
	switch r.InferType(data, valid) {
	case BoolColumn:
		values := make([]bool, len(data))
		for i, v := range data {
			values[i] = valid[i] && strings.EqualFold(v, "true")
		}
		return series.NewWithNulls(name, values, valid, r.mem), nil
	case IntColumn:
		values := make([]int64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseInt(v, 10, 64)
			}
		}
		return series.NewWithNulls(name, values, valid, r.mem), nil
	case FloatColumn:
		values := make([]float64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(v, 64)
			}
		}
		return series.NewWithNulls(name, values, valid, r.mem), nil
	case TimestampColumn:
		values := make([]time.Time, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = common.ParseTimestamp(r.options.TimestampLayout, v)
			}
		}
		return series.NewWithNulls(name, values, valid, r.mem), nil
	default:
		return series.NewWithNulls(name, data, valid, r.mem), nil
	}
}

// InferType determines the most specific type every non-null value fits:
// bool, then integer, then float, then timestamp, falling back to string.
// A column without any non-null value is a string column.
func (r *CSVReader) InferType(data []string, valid []bool) ColumnType {
	canBeBool := true
	canBeInt := true
	canBeFloat := true
	canBeTimestamp := r.options.TimestampLayout != ""
	hasValue := false

	for i, value := range data {
		if !valid[i] {
			continue
		}
		hasValue = true

		if canBeBool && !strings.EqualFold(value, "true") && !strings.EqualFold(value, "false") {
			canBeBool = false
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat && !isDecimal(value) {
			canBeFloat = false
		}
		if canBeTimestamp {
			if _, ok := common.ParseTimestamp(r.options.TimestampLayout, value); !ok {
				canBeTimestamp = false
			}
		}
		if !canBeBool && !canBeInt && !canBeFloat && !canBeTimestamp {
			return StringColumn
		}
	}

	switch {
	case !hasValue:
		return StringColumn
	case canBeBool:
		return BoolColumn
	case canBeInt:
		return IntColumn
	case canBeFloat:
		return FloatColumn
	case canBeTimestamp:
		return TimestampColumn
	default:
		return StringColumn
	}
}

// isDecimal accepts plain decimal and exponent notation only, so that words
// like "inf" or "nan" stay text.
func isDecimal(value string) bool {
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
		case c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return false
		}
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}
