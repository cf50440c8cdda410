/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2021 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logcfg "github.com/nabbar/nettransport/logger/config"
	loglvl "github.com/nabbar/nettransport/logger/level"
	logtps "github.com/nabbar/nettransport/logger/types"
	"github.com/sirupsen/logrus"
)

// hookFile is a self-contained logtps.Hook writing logrus entries to a
// single file, with no dependency on any aggregator/buffering package: each
// Write reopens-on-error and re-syncs at most every 30s, following the same
// tradeoff as the original file hook it replaces.
type hookFile struct {
	m sync.Mutex
	h *os.File
	w time.Time
	r logrus.Formatter
	l []logrus.Level
	s bool
	d bool
	t bool
	a bool
	o hookFileOptions
	running atomic.Bool
}

type hookFileOptions struct {
	create   bool
	filepath string
	flags    int
	modeFile os.FileMode
	modePath os.FileMode
}

// newHookFile builds a hookFile from opt, creating the target directory
// when opt.CreatePath is set. Levels default to logrus.AllLevels when
// opt.LogLevel is empty.
func newHookFile(opt logcfg.OptionsFile, format logrus.Formatter) (logtps.Hook, error) {
	if opt.Filepath == "" {
		return nil, fmt.Errorf("logger/hookfile: missing file path")
	}

	var (
		lvls  = make([]logrus.Level, 0)
		flags = os.O_WRONLY | os.O_APPEND
	)

	if len(opt.LogLevel) > 0 {
		for _, ls := range opt.LogLevel {
			lvls = append(lvls, loglvl.Parse(ls).Logrus())
		}
	} else {
		lvls = logrus.AllLevels
	}

	if opt.Create {
		flags = os.O_CREATE | flags
	}

	mFile := opt.FileMode
	if mFile == 0 {
		mFile = 0644
	}

	mPath := opt.PathMode
	if mPath == 0 {
		mPath = 0755
	}

	obj := &hookFile{
		r: format,
		l: lvls,
		s: opt.DisableStack,
		d: opt.DisableTimestamp,
		t: opt.EnableTrace,
		a: opt.EnableAccessLog,
		o: hookFileOptions{
			create:   opt.CreatePath,
			filepath: opt.Filepath,
			flags:    flags,
			modeFile: mFile,
			modePath: mPath,
		},
	}

	h, e := obj.openCreate()
	if e != nil {
		return nil, e
	}
	_ = h.Close()

	return obj, nil
}

func (o *hookFile) openCreate() (*os.File, error) {
	if o.o.create {
		if err := os.MkdirAll(filepath.Dir(o.o.filepath), o.o.modePath); err != nil {
			return nil, err
		}
	}

	h, e := os.OpenFile(o.o.filepath, o.o.flags, o.o.modeFile)
	if e != nil {
		return nil, e
	}
	if _, e = h.Seek(0, io.SeekEnd); e != nil {
		return nil, e
	}
	return h, nil
}

func (o *hookFile) RegisterHook(log *logrus.Logger) {
	log.AddHook(o)
}

func (o *hookFile) Run(ctx context.Context) {
	o.running.Store(true)
	go func() {
		<-ctx.Done()
		o.running.Store(false)
		_ = o.Close()
	}()
}

func (o *hookFile) IsRunning() bool {
	return o.running.Load()
}

func (o *hookFile) Levels() []logrus.Level {
	return o.l
}

func (o *hookFile) Fire(entry *logrus.Entry) error {
	ent := entry.Dup()
	ent.Level = entry.Level

	if o.s {
		ent.Data = filterKey(ent.Data, logtps.FieldStack)
	}

	if o.d {
		ent.Data = filterKey(ent.Data, logtps.FieldTime)
	}

	if !o.t {
		ent.Data = filterKey(ent.Data, logtps.FieldCaller)
		ent.Data = filterKey(ent.Data, logtps.FieldFile)
		ent.Data = filterKey(ent.Data, logtps.FieldLine)
	}

	var (
		p []byte
		e error
	)

	if o.a {
		if len(entry.Message) > 0 {
			if !strings.HasSuffix(entry.Message, "\n") {
				entry.Message += "\n"
			}
			p = []byte(entry.Message)
		} else {
			return nil
		}
	} else {
		if len(ent.Data) < 1 {
			return nil
		}

		if o.r != nil {
			p, e = o.r.Format(ent)
		} else {
			p, e = ent.Bytes()
		}

		if e != nil {
			return e
		}
	}

	if _, e = o.Write(p); e != nil {
		return e
	}

	return nil
}

func (o *hookFile) write(p []byte) (n int, err error) {
	o.m.Lock()
	defer o.m.Unlock()

	var e error

	if o.h == nil {
		if o.h, e = o.openCreate(); e != nil {
			return 0, fmt.Errorf("logger/hookfile: cannot open '%s': %w", o.o.filepath, e)
		}
	} else if _, e = o.h.Seek(0, io.SeekEnd); e != nil {
		return 0, fmt.Errorf("logger/hookfile: cannot seek file '%s' to EOF: %w", o.o.filepath, e)
	}

	return o.h.Write(p)
}

func (o *hookFile) Write(p []byte) (n int, err error) {
	if n, err = o.write(p); err != nil {
		_ = o.Close()
		n, err = o.write(p)
	}

	if err != nil {
		return n, err
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.w.IsZero() || time.Since(o.w) > 30*time.Second {
		_ = o.h.Sync()
		o.w = time.Now()
	}

	return n, err
}

func (o *hookFile) Close() error {
	o.m.Lock()
	defer o.m.Unlock()

	if o.h == nil {
		return nil
	}

	var e error

	if er := o.h.Sync(); er != nil {
		e = fmt.Errorf("logger/hookfile: sync file error '%s': %w", o.o.filepath, er)
	}

	if er := o.h.Close(); er != nil {
		if e != nil {
			e = fmt.Errorf("%v, close file error '%s': %w", e, o.o.filepath, er)
		} else {
			e = fmt.Errorf("logger/hookfile: close file error '%s': %w", o.o.filepath, er)
		}
	}

	o.h = nil
	return e
}

func filterKey(f logrus.Fields, key string) logrus.Fields {
	if len(f) < 1 {
		return f
	}

	if _, ok := f[key]; !ok {
		return f
	}

	delete(f, key)
	return f
}
