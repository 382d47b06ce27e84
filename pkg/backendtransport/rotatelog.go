// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// backendLog is a small per-backend append-only writer for captured
// stdio stderr (spec §6: "<base>/logs/<backend>.log"). It truncates
// once it passes maxLogBytes so a runaway backend can't fill the disk;
// this is deliberately simpler than a full rotation scheme since the
// log is diagnostic only, never read back by toolgate itself.
const maxLogBytes = 4 << 20 // 4 MiB

type backendLog struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
}

func newBackendLog(dir, backend string) (*backendLog, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(dir, backend+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening backend log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &backendLog{path: path, file: f, written: info.Size()}, nil
}

func (l *backendLog) writeLine(line string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.written >= maxLogBytes {
		if err := l.file.Truncate(0); err == nil {
			_, _ = l.file.Seek(0, 0)
			l.written = 0
		}
	}
	n, _ := fmt.Fprintln(l.file, line)
	l.written += int64(n)
}

func (l *backendLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
