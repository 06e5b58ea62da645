package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Field describes one column.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// Schema lists the columns with their type names.
func (df *DataFrame) Schema() []Field {
	fields := make([]Field, 0, df.Width())
	for _, name := range df.order {
		fields = append(fields, Field{
			Name:     name,
			Type:     TypeName(df.columns[name].DataType()),
			Nullable: true,
		})
	}
	return fields
}

// SchemaString renders the schema as an indented tree:
//
//	root
//	 |-- order_id: string (nullable = true)
func (df *DataFrame) SchemaString() string {
	return FormatSchema(df.Schema())
}

// FormatSchema renders fields as an indented tree.
func FormatSchema(fields []Field) string {
	var sb strings.Builder
	sb.WriteString("root\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, " |-- %s: %s (nullable = %t)\n", f.Name, f.Type, f.Nullable)
	}
	return sb.String()
}

// TypeName returns the warehouse name of an Arrow type.
func TypeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return "string"
	case arrow.INT64:
		return "long"
	case arrow.INT32:
		return "integer"
	case arrow.FLOAT64:
		return "double"
	case arrow.BOOL:
		return "boolean"
	case arrow.TIMESTAMP:
		return "timestamp"
	default:
		return dt.Name()
	}
}
