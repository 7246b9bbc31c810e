package s3output

import (
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/xevent-aggregator/base"
	"github.com/stretchr/testify/assert"
)

func TestSpillDirRoundTrip(t *testing.T) {
	sd, err := NewSpillDir(logger.WithField("test", t.Name()), t.TempDir()+"/spill")
	assert.Nil(t, err)
	defer sd.Close()

	sd.Save(base.UploadTask{
		Key:         "20240102_030405.xml",
		Data:        []byte("<EVENTS><EVENT>A</EVENT>\n</EVENTS>"),
		ContentType: "application/xml",
	})
	sd.Save(base.UploadTask{
		Key:         "20240102_030405_1.xml",
		Data:        []byte("<EVENTS><EVENT>B</EVENT>\n</EVENTS>"),
		ContentType: "application/xml",
	})

	tasks := sd.Reload()
	if assert.Len(t, tasks, 2) {
		assert.Equal(t, "20240102_030405.xml", tasks[0].Key)
		assert.Equal(t, "<EVENTS><EVENT>A</EVENT>\n</EVENTS>", string(tasks[0].Data))
		assert.Equal(t, "20240102_030405_1.xml", tasks[1].Key)
		assert.Equal(t, "<EVENTS><EVENT>B</EVENT>\n</EVENTS>", string(tasks[1].Data))
	}

	sd.Remove("20240102_030405.xml")
	remaining := sd.Reload()
	if assert.Len(t, remaining, 1) {
		assert.Equal(t, "20240102_030405_1.xml", remaining[0].Key)
	}
}

func TestSpillDirPartitionedKey(t *testing.T) {
	sd, err := NewSpillDir(logger.WithField("test", t.Name()), t.TempDir()+"/spill")
	assert.Nil(t, err)
	defer sd.Close()

	// path separators in partitioned keys are flattened for the file name
	sd.Save(base.UploadTask{
		Key:  "events/2024/01/02/20240102_030405.xml",
		Data: []byte("x"),
	})
	tasks := sd.Reload()
	if assert.Len(t, tasks, 1) {
		assert.Equal(t, []byte("x"), tasks[0].Data)
	}
	sd.Remove("events/2024/01/02/20240102_030405.xml")
	assert.Empty(t, sd.Reload())
}
