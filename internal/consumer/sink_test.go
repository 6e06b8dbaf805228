package consumer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorproject/conveyor/internal/model"
)

func TestOutputSink_WritesFormattedLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := OpenOutputSink(dir, "abc123")
	require.NoError(t, err)

	require.NoError(t, sink.WriteProcessed(&model.WorkItem{SequenceNumber: 1, ProducedAt: time.Unix(1712345678, 0)}))
	require.NoError(t, sink.WriteProcessed(&model.WorkItem{SequenceNumber: 2, ProducedAt: time.Unix(1712345679, 0)}))
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(filepath.Join(dir, "consumer_abc123.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"Consumer abc123 processed package 1 (timestamp: 1712345678)\n"+
			"Consumer abc123 processed package 2 (timestamp: 1712345679)\n",
		string(content))
}

func TestOutputSink_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	sink, err := OpenOutputSink(dir, "abc123")
	require.NoError(t, err)
	require.NoError(t, sink.WriteProcessed(&model.WorkItem{SequenceNumber: 1, ProducedAt: time.Unix(100, 0)}))
	require.NoError(t, sink.Close())

	sink, err = OpenOutputSink(dir, "abc123")
	require.NoError(t, err)
	require.NoError(t, sink.WriteProcessed(&model.WorkItem{SequenceNumber: 2, ProducedAt: time.Unix(101, 0)}))
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(filepath.Join(dir, "consumer_abc123.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"Consumer abc123 processed package 1 (timestamp: 100)\n"+
			"Consumer abc123 processed package 2 (timestamp: 101)\n",
		string(content))
}

func TestOpenOutputSink_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")

	sink, err := OpenOutputSink(dir, "abc123")
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
