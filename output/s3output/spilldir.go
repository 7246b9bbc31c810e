package s3output

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/xattr"
	"github.com/relex/gotils/logger"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/defs"
	"github.com/relex/xevent-aggregator/util"
)

const xattrSpillOwner = "user.xeventSpillOwner"
const xattrSpillKey = "user.xeventSpillKey"
const xattrSpillContentType = "user.xeventSpillContentType"
const xattrSpillContentEncoding = "user.xeventSpillContentEncoding"

// SpillDir persists batches that could not be uploaded, so abandoned and leftover tasks
// survive restarts and can be re-queued at startup
//
// The storage key and content type travel in extended attributes; the file name is the
// key with path separators flattened. All operations are best-effort and only logged,
// a broken spill dir must never take down ingestion.
type SpillDir struct {
	logger logger.Logger
	path   string
	dir    *os.File
}

// NewSpillDir creates or reopens a spill directory
func NewSpillDir(parentLogger logger.Logger, path string) (*SpillDir, error) {
	sdLogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "SpillDir",
		"path":              path,
	})

	if derr := os.MkdirAll(path, 0755); derr != nil {
		return nil, derr
	}
	if xerr := xattr.Set(path, xattrSpillOwner, []byte(defs.ObjectSourceTag)); xerr != nil {
		sdLogger.Warnf("error labelling spill dir: %s", xerr)
	}

	dir, oerr := os.Open(path)
	if oerr != nil {
		return nil, oerr
	}

	return &SpillDir{
		logger: sdLogger,
		path:   path,
		dir:    dir,
	}, nil
}

// Save writes the task data to disk for later re-queueing
func (sd *SpillDir) Save(task base.UploadTask) {
	filename := spillFileName(task.Key)
	if werr := util.WriteFileAt(sd.dir, filename, task.Data, 0644); werr != nil {
		sd.logger.Errorf("error saving batch key=%s: %s", task.Key, werr.Error())
		return
	}

	fullPath := filepath.Join(sd.path, filename)
	for attrName, attrValue := range map[string]string{
		xattrSpillKey:             task.Key,
		xattrSpillContentType:     task.ContentType,
		xattrSpillContentEncoding: task.ContentEncoding,
	} {
		if len(attrValue) == 0 {
			continue
		}
		if xerr := xattr.Set(fullPath, attrName, []byte(attrValue)); xerr != nil {
			sd.logger.Warnf("error labelling batch file=%s: %s", filename, xerr)
		}
	}
	sd.logger.Infof("saved batch key=%s bytes=%d", task.Key, len(task.Data))
}

// Remove deletes the spilled file of a task, to be called after confirmed upload
func (sd *SpillDir) Remove(key string) {
	filename := spillFileName(key)
	if uerr := util.UnlinkFileAt(sd.dir, filename); uerr != nil && !os.IsNotExist(uerr) {
		sd.logger.Warnf("error removing batch file=%s: %s", filename, uerr.Error())
	}
}

// Reload scans the directory and rebuilds upload tasks from spilled files
//
// Files without a key label, e.g. written on a filesystem without xattr support, fall
// back to their file name as the key
func (sd *SpillDir) Reload() []base.UploadTask {
	entries, rerr := os.ReadDir(sd.path)
	if rerr != nil {
		sd.logger.Errorf("error scanning spill dir: %s", rerr.Error())
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	tasks := make([]base.UploadTask, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		data, ferr := util.ReadFileAt(sd.dir, filename)
		if ferr != nil {
			sd.logger.Errorf("error reading batch file=%s: %s", filename, ferr.Error())
			continue
		}

		fullPath := filepath.Join(sd.path, filename)
		task := base.UploadTask{
			Key:             readXattrOr(fullPath, xattrSpillKey, filename),
			Data:            data,
			ContentType:     readXattrOr(fullPath, xattrSpillContentType, "application/octet-stream"),
			ContentEncoding: readXattrOr(fullPath, xattrSpillContentEncoding, ""),
			Metadata:        map[string]string{"source": defs.ObjectSourceTag},
		}
		if info, ierr := entry.Info(); ierr == nil {
			task.CreatedAt = info.ModTime().UTC()
		}
		tasks = append(tasks, task)
	}

	if len(tasks) > 0 {
		sd.logger.Infof("reloaded %d spilled batches", len(tasks))
	}
	return tasks
}

// Close releases the directory handle
func (sd *SpillDir) Close() {
	sd.dir.Close()
}

func spillFileName(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

func readXattrOr(path string, attrName string, fallback string) string {
	value, xerr := xattr.Get(path, attrName)
	if xerr != nil || len(value) == 0 {
		return fallback
	}
	return string(value)
}
