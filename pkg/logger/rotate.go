package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatingWriter 按大小轮转审计日志：写满后把当前文件重命名为 .1，
// 历史备份依次顺延，超出份数或保留时长的备份被删除。
type rotatingWriter struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	written    int64
	maxBytes   int64
	maxBackups int
	retention  time.Duration
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("审计日志路径不能为空")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建审计日志目录失败: %w", err)
	}
	return &rotatingWriter{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		retention:  time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.written+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

func (w *rotatingWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开审计日志失败: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("读取审计日志状态失败: %w", err)
	}
	w.file = file
	w.written = info.Size()
	return nil
}

func (w *rotatingWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.written = 0

	// 备份从编号大的开始顺延，最老的一份直接被覆盖掉。
	for i := w.maxBackups - 1; i >= 1; i-- {
		src := w.backupPath(i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, w.backupPath(i+1))
		}
	}
	if _, err := os.Stat(w.path); err == nil {
		_ = os.Rename(w.path, w.backupPath(1))
	}

	w.pruneExpired()
	return nil
}

func (w *rotatingWriter) pruneExpired() {
	if w.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.retention)
	for i := 1; i <= w.maxBackups+1; i++ {
		path := w.backupPath(i)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if i > w.maxBackups || info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

func (w *rotatingWriter) backupPath(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}
