/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/caiflower/rawhttp/pkg/syncx"
	"github.com/caiflower/rawhttp/pkg/tools"
)

type Appender interface {
	write(data data)
	close()
}

type logAppender struct {
	timeFormat  string
	enableTrace bool
	enableColor bool

	bufPool   sync.Pool
	writeLock sync.Locker
	out       io.Writer
	logFile   *os.File
}

func newLogAppender(timeFormat, path, fileName string, enableTrace, enableColor bool) Appender {
	appender := &logAppender{
		timeFormat: timeFormat,
		bufPool: sync.Pool{
			New: func() interface{} {
				return new(strings.Builder)
			}},
		enableTrace: enableTrace,
		enableColor: enableColor,
		writeLock:   syncx.NewSpinLock(),
		out:         os.Stdout,
	}

	if path != "" {
		if err := tools.Mkdir(path, 0755); err != nil {
			panic(fmt.Sprintf("[logger appender] mkdir err: %s\n", err))
		}
		logfile, err := os.OpenFile(filepath.Join(path, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			panic(fmt.Sprintf("[logger appender] open logfile err: %s\n", err))
		}
		appender.logFile = logfile
		appender.out = logfile
		// 文件中不输出颜色控制符
		appender.enableColor = false
	}

	return appender
}

func (appender *logAppender) write(data data) {
	defer onError("[logger appender]")

	level := data.level
	if appender.enableColor {
		level = getLevelColor(level)
	}
	buf := appender.bufPool.Get().(*strings.Builder)
	buf.Reset()
	buf.WriteString(data.timestamp.Format(appender.timeFormat))
	buf.WriteString(" [")
	buf.WriteString(level)
	buf.WriteString("] ")
	if appender.enableTrace {
		if data.connID != "" {
			buf.WriteString("[")
			buf.WriteString(data.connID)
			buf.WriteString("] ")
		}
		if data.traceID != "" {
			buf.WriteString("[")
			if appender.enableColor {
				buf.WriteString(fmt.Sprintf("\033[1;35m%s\033[0m", data.traceID))
			} else {
				buf.WriteString(data.traceID)
			}
			buf.WriteString("] ")
		}
	}
	buf.WriteString(data.position)
	buf.WriteString(" - ")
	buf.WriteString(data.content)
	buf.WriteByte('\n')

	appender.writeLock.Lock()
	defer func() {
		appender.writeLock.Unlock()
		buf.Reset()
		appender.bufPool.Put(buf)
	}()

	if _, err := io.WriteString(appender.out, buf.String()); err != nil {
		fmt.Printf("[ERROR] - output err %s\n", err.Error())
	}
}

func (appender *logAppender) close() {
	appender.writeLock.Lock()
	defer appender.writeLock.Unlock()

	if appender.logFile != nil {
		if err := appender.logFile.Sync(); err != nil {
			fmt.Printf("[logger close] sync log file err: %s\n", err)
		}
		if err := appender.logFile.Close(); err != nil {
			fmt.Printf("[logger appender] close logfile err: %s\n", err)
		}
		appender.logFile = nil
		appender.out = io.Discard
	}
}

// 拦截panic
func onError(txt string) {
	if r := recover(); r != nil {
		fmt.Println(time.Now().Format(_timeFormat), "[ERROR] -", "Got a runtime error", txt, r, string(debug.Stack()))
	}
}
