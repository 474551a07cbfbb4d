package engine

import (
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"

	"github.com/arkilian/minicql/internal/codec"
	"github.com/arkilian/minicql/internal/errors"
	"github.com/arkilian/minicql/internal/exec"
)

// columnMetadata converts executor column descriptors to wire metadata.
func columnMetadata(cols []exec.ResultColumn) []*message.ColumnMetadata {
	out := make([]*message.ColumnMetadata, len(cols))
	for i, c := range cols {
		out[i] = &message.ColumnMetadata{
			Keyspace: c.Keyspace,
			Table:    c.Table,
			Name:     c.Name,
			Index:    int32(i),
			Type:     c.Type.DataType(),
		}
	}
	return out
}

// resultMessage renders an execution result as a RESULT message. Row
// cells are encoded with the value codec; a null cell becomes a null
// wire value.
func resultMessage(res exec.Result) message.Message {
	switch r := res.(type) {
	case *exec.VoidResult:
		return &message.VoidResult{}
	case *exec.SetKeyspaceResult:
		return &message.SetKeyspaceResult{Keyspace: r.Keyspace}
	case *exec.SchemaChangeResult:
		return &message.SchemaChangeResult{
			ChangeType: primitive.SchemaChangeType(r.ChangeType),
			Target:     primitive.SchemaChangeTarget(r.Target),
			Keyspace:   r.Keyspace,
			Object:     r.Object,
		}
	case *exec.RowsResult:
		data := make(message.RowSet, 0, len(r.Rows))
		for _, row := range r.Rows {
			wire := make(message.Row, len(row))
			for i, v := range row {
				if v.IsNull() {
					wire[i] = nil
					continue
				}
				encoded, err := codec.Encode(v, r.Columns[i].Type)
				if err != nil {
					return errorMessage(err)
				}
				wire[i] = encoded
			}
			data = append(data, wire)
		}
		return &message.RowsResult{
			Metadata: &message.RowsMetadata{
				ColumnCount: int32(len(r.Columns)),
				Columns:     columnMetadata(r.Columns),
			},
			Data: data,
		}
	default:
		return &message.ServerError{ErrorMessage: "unhandled result type"}
	}
}

func preparedMessage(prep *exec.PreparedStatementResult) message.Message {
	resultMeta := &message.RowsMetadata{}
	if len(prep.Columns) > 0 {
		resultMeta.ColumnCount = int32(len(prep.Columns))
		resultMeta.Columns = columnMetadata(prep.Columns)
	}
	return &message.PreparedResult{
		PreparedQueryId: prep.ID,
		VariablesMetadata: &message.VariablesMetadata{
			PkIndices: prep.PkIndices,
			Columns:   columnMetadata(prep.Variables),
		},
		ResultMetadata: resultMeta,
	}
}

// errorMessage maps an engine error onto the closest wire error.
func errorMessage(err error) message.Message {
	msg := err.Error()
	switch errors.GetCategory(err) {
	case errors.ErrCategoryParse:
		return &message.SyntaxError{ErrorMessage: msg}
	case errors.ErrCategorySchema:
		if errors.GetCode(err) == errors.CodeAlreadyExists {
			return &message.AlreadyExists{ErrorMessage: msg}
		}
		return &message.Invalid{ErrorMessage: msg}
	case errors.ErrCategoryType, errors.ErrCategoryExecution:
		return &message.Invalid{ErrorMessage: msg}
	case errors.ErrCategoryProtocol:
		return &message.ProtocolError{ErrorMessage: msg}
	default:
		return &message.ServerError{ErrorMessage: msg}
	}
}
