package storage

import (
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// StoredTable is a table's persisted catalog entry: its schema plus how
// many batches have been sealed, enough to reload every segment by key
// after a restart.
type StoredTable struct {
	Info       *common.TableInfo
	BatchCount uint64
}

func metaKey(tableName string) []byte {
	return common.AppendStringToBufferLE([]byte{'m'}, tableName)
}

func serializeTableMeta(st *StoredTable) []byte {
	buff := common.AppendUint64ToBufferLE(nil, st.Info.ID)
	buff = common.AppendStringToBufferLE(buff, st.Info.Name)
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(st.Info.ColumnNames)))
	for i, name := range st.Info.ColumnNames {
		buff = common.AppendStringToBufferLE(buff, name)
		buff = append(buff, byte(st.Info.ColumnTypes[i].Type))
	}
	return common.AppendUint64ToBufferLE(buff, st.BatchCount)
}

func deserializeTableMeta(buff []byte) (*StoredTable, error) {
	if len(buff) < 12 {
		return nil, errors.NewLocustErrorf(errors.InternalError, "truncated table metadata")
	}
	info := &common.TableInfo{}
	offset := 0
	info.ID, offset = common.ReadUint64FromBufferLE(buff, offset)
	info.Name, offset = common.ReadStringFromBufferLE(buff, offset)
	var numCols uint32
	numCols, offset = common.ReadUint32FromBufferLE(buff, offset)
	for i := uint32(0); i < numCols; i++ {
		var name string
		name, offset = common.ReadStringFromBufferLE(buff, offset)
		colType := common.ColumnTypesByType[common.Type(buff[offset])]
		offset++
		info.ColumnNames = append(info.ColumnNames, name)
		info.ColumnTypes = append(info.ColumnTypes, colType)
	}
	batchCount, _ := common.ReadUint64FromBufferLE(buff, offset)
	return &StoredTable{Info: info, BatchCount: batchCount}, nil
}
