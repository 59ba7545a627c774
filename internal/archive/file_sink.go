package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSink 每条报文一个文件：<root>/<deviceId>/t1078_<deviceId>_0x<MSGID>_<yyyyMMdd_HHmmss>.bin。
// 同一秒内的同类报文追加到同一文件。
type FileSink struct {
	root string
}

// NewFileSink 创建文件归档
func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

func (f *FileSink) Name() string { return "file" }
func (f *FileSink) Root() string { return f.root }

// FileName 归档文件路径
func (f *FileSink) FileName(rec Record) string {
	dev := sanitize(rec.DeviceID)
	name := fmt.Sprintf("t1078_%s_0x%X_%s.bin", dev, rec.MsgID, rec.Time.Format("20060102_150405"))
	return filepath.Join(f.root, dev, name)
}

// Write 写入一条记录
func (f *FileSink) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.FileName(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	_, werr := fh.Write(rec.Payload)
	return errors.Join(werr, fh.Close())
}

// 设备ID用作目录名，去掉路径分隔符
func sanitize(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}

// Status 存储目录状态
type Status struct {
	Enabled         bool   `json:"enabled"`
	StoragePath     string `json:"storagePath"`
	StorageExists   bool   `json:"storageExists"`
	StorageWritable bool   `json:"storageWritable"`
	Error           string `json:"error,omitempty"`
}

// CheckStorage 检查归档目录是否存在且可写
func CheckStorage(root string, enabled bool) Status {
	st := Status{Enabled: enabled, StoragePath: root}
	abs, err := filepath.Abs(root)
	if err == nil {
		st.StoragePath = abs
	}
	info, err := os.Stat(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			st.Error = err.Error()
		}
		return st
	}
	if !info.IsDir() {
		st.Error = "storage path is not a directory"
		return st
	}
	st.StorageExists = true

	tmp, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		st.Error = err.Error()
		return st
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	st.StorageWritable = true
	return st
}
