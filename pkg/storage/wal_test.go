package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

func TestWALEngine_WriteAndReadEntries(t *testing.T) {
	walEngine := NewWALEngine(t.TempDir(), DurabilityOS)
	defer walEngine.Close()

	for i := 0; i < 3; i++ {
		err := walEngine.WriteEntry(&WALEntry{
			Type: WALEntryBatch,
			Ops: []WALOp{
				{Kind: OpSet, Ref: domain.Ref("users", "1"), Data: domain.Document{"n": i}},
				{Kind: OpDelete, Ref: domain.Ref("users", "2")},
			},
		})
		require.NoError(t, err)
	}

	files, err := walEngine.GetWALFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)

	entries, err := walEngine.ReadEntries(files[0])
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, entry := range entries {
		assert.Equal(t, int64(i), entry.LSN)
		require.Len(t, entry.Ops, 2)
		assert.Equal(t, OpDelete, entry.Ops[1].Kind)
		assert.EqualValues(t, i, entry.Ops[0].Data["n"])
	}
	assert.Equal(t, int64(3), walEngine.GetCurrentLSN())
}

func TestWALEngine_DetectsCorruption(t *testing.T) {
	walEngine := NewWALEngine(t.TempDir(), DurabilityOS)
	require.NoError(t, walEngine.WriteEntry(&WALEntry{
		Type: WALEntryBatch,
		Ops:  []WALOp{{Kind: OpSet, Ref: domain.Ref("users", "1"), Data: domain.Document{"name": "Alice"}}},
	}))
	path := walEngine.walFile.Path
	require.NoError(t, walEngine.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(string(raw[:len(raw)-1]))
	for i := range tampered {
		if tampered[i] == 'A' {
			tampered[i] = 'M'
			break
		}
	}
	require.NoError(t, os.WriteFile(path, append(tampered, '\n'), 0644))

	_, err = walEngine.ReadEntries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum verification failed")
}

func TestWALEngine_RotateAndRemoveInactive(t *testing.T) {
	walEngine := NewWALEngine(t.TempDir(), DurabilityOS)
	defer walEngine.Close()

	require.NoError(t, walEngine.WriteEntry(&WALEntry{Type: WALEntryBatch}))
	require.NoError(t, walEngine.RotateWALFile())
	require.NoError(t, walEngine.WriteEntry(&WALEntry{Type: WALEntryBatch}))

	files, err := walEngine.GetWALFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)

	removed, err := walEngine.RemoveInactiveFiles()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files, err = walEngine.GetWALFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, walEngine.walFile.Path, files[0])

	entries, err := walEngine.ReadEntries(files[0])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].LSN)
}

func TestWALEngine_ReadEntriesReportsTornTail(t *testing.T) {
	walEngine := NewWALEngine(t.TempDir(), DurabilityOS)
	require.NoError(t, walEngine.WriteEntry(&WALEntry{
		Type: WALEntryBatch,
		Ops:  []WALOp{{Kind: OpSet, Ref: domain.Ref("users", "1"), Data: domain.Document{"n": int64(1) << 60}}},
	}))
	path := walEngine.walFile.Path
	require.NoError(t, walEngine.Close())

	intact, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(intact, []byte("0123")...), 0644))

	entries, err := walEngine.ReadEntries(path)
	var torn *TornTailError
	require.ErrorAs(t, err, &torn)
	assert.Equal(t, int64(len(intact)), torn.Offset)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1)<<60, entries[0].Ops[0].Data["n"])
	assert.NotZero(t, entries[0].Checksum)
}
