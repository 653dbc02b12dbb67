package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

func TestFileHeader_WriteAndRead(t *testing.T) {
	var buf bytes.Buffer
	err := WriteHeader(&buf, FlagLZ4)
	require.NoError(t, err)

	assert.Len(t, buf.Bytes(), 8) // 4 bytes magic + 1 byte version + 1 byte flags + 2 bytes reserved

	header, err := ReadHeader(&buf)
	require.NoError(t, err)

	assert.Equal(t, MagicBytes, string(header.Magic[:]))
	assert.EqualValues(t, FormatVersion, header.Version)
	assert.Equal(t, FlagLZ4, header.Flags)
	assert.Equal(t, [2]byte{0, 0}, header.Reserved)
}

func TestFileHeader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		header  FileHeader
		message string
	}{
		{
			name:    "invalid magic",
			header:  FileHeader{Magic: [4]byte{'I', 'N', 'V', 'L'}, Version: FormatVersion},
			message: "invalid file format",
		},
		{
			name:    "invalid version",
			header:  FileHeader{Magic: [4]byte{'G', 'O', 'D', 'B'}, Version: 99},
			message: "unsupported file version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, tt.header))

			_, err := ReadHeader(&buf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFileHeader_ShortBuffer(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})

	_, err := ReadHeader(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read header")
}

func TestEncodeSnapshot_Layout(t *testing.T) {
	data := &SnapshotData{
		LSN: 7,
		Collections: map[string]map[string]domain.Document{
			"users":    {"1": {"_id": "1", "name": "Alice"}, "2": {"_id": "2", "name": "Bob", "age": 25}},
			"products": {"1": {"_id": "1", "name": "Laptop", "price": 999.99}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, encodeSnapshot(&buf, data))

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, FlagLZ4, header.Flags&FlagLZ4)

	raw, err := io.ReadAll(lz4.NewReader(&buf))
	require.NoError(t, err)

	var decoded SnapshotData
	require.NoError(t, msgpack.Unmarshal(raw, &decoded))

	assert.Equal(t, int64(7), decoded.LSN)
	require.Len(t, decoded.Collections, 2)
	assert.Equal(t, "Alice", decoded.Collections["users"]["1"]["name"])
	assert.EqualValues(t, 25, decoded.Collections["users"]["2"]["age"])
	assert.Equal(t, 999.99, decoded.Collections["products"]["1"]["price"])
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "GODB", MagicBytes)
	assert.EqualValues(t, 2, FormatVersion)
	assert.Equal(t, ".godb", FileExtension)
}
