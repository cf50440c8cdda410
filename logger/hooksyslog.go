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
	"strings"
	"sync"
	"sync/atomic"

	logcfg "github.com/nabbar/nettransport/logger/config"
	loglvl "github.com/nabbar/nettransport/logger/level"
	logtps "github.com/nabbar/nettransport/logger/types"
	"github.com/sirupsen/logrus"
)

// syslogWriter is the subset of *log/syslog.Writer this hook depends on,
// satisfied directly by *syslog.Writer on unix and by a "not supported"
// stub on windows (see sys_syslog.go / sys_winlog.go).
type syslogWriter interface {
	Emerg(m string) error
	Alert(m string) error
	Crit(m string) error
	Err(m string) error
	Warning(m string) error
	Notice(m string) error
	Info(m string) error
	Debug(m string) error
	Close() error
}

// hookSyslog is a self-contained logtps.Hook writing logrus entries to a
// syslog daemon (or, per sys_winlog.go, returning a clear error at creation
// time on windows), dispatching each entry to the syslog severity matching
// its logrus level.
type hookSyslog struct {
	m       sync.Mutex
	w       syslogWriter
	r       logrus.Formatter
	l       []logrus.Level
	s       bool
	d       bool
	t       bool
	a       bool
	running atomic.Bool
}

// newHookSyslog dials opt's syslog target and wraps it as a logtps.Hook.
// Levels default to logrus.AllLevels when opt.LogLevel is empty.
func newHookSyslog(opt logcfg.OptionsSyslog, format logrus.Formatter) (logtps.Hook, error) {
	var lvls = make([]logrus.Level, 0)

	if len(opt.LogLevel) > 0 {
		for _, ls := range opt.LogLevel {
			lvls = append(lvls, loglvl.Parse(ls).Logrus())
		}
	} else {
		lvls = logrus.AllLevels
	}

	w, e := dialSyslog(opt.Network, opt.Host, opt.Tag, MakeFacility(opt.Facility))
	if e != nil {
		return nil, e
	}

	return &hookSyslog{
		w: w,
		r: format,
		l: lvls,
		s: opt.DisableStack,
		d: opt.DisableTimestamp,
		t: opt.EnableTrace,
		a: opt.EnableAccessLog,
	}, nil
}

func (o *hookSyslog) RegisterHook(log *logrus.Logger) {
	log.AddHook(o)
}

func (o *hookSyslog) Run(ctx context.Context) {
	o.running.Store(true)
	go func() {
		<-ctx.Done()
		o.running.Store(false)
		_ = o.Close()
	}()
}

func (o *hookSyslog) IsRunning() bool {
	return o.running.Load()
}

func (o *hookSyslog) Levels() []logrus.Level {
	return o.l
}

func (o *hookSyslog) Fire(entry *logrus.Entry) error {
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
			m := entry.Message
			if !strings.HasSuffix(m, "\n") {
				m += "\n"
			}
			p = []byte(m)
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

	return o.write(entry.Level, string(p))
}

func (o *hookSyslog) write(lvl logrus.Level, m string) error {
	o.m.Lock()
	w := o.w
	o.m.Unlock()

	if w == nil {
		return nil
	}

	switch lvl {
	case logrus.PanicLevel:
		return w.Emerg(m)
	case logrus.FatalLevel:
		return w.Alert(m)
	case logrus.ErrorLevel:
		return w.Err(m)
	case logrus.WarnLevel:
		return w.Warning(m)
	case logrus.InfoLevel:
		return w.Info(m)
	default:
		return w.Debug(m)
	}
}

// Write implements io.Writer for the logtps.Hook contract, logging at the
// info severity.
func (o *hookSyslog) Write(p []byte) (n int, err error) {
	if err = o.write(logrus.InfoLevel, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (o *hookSyslog) Close() error {
	o.m.Lock()
	defer o.m.Unlock()

	if o.w == nil {
		return nil
	}

	err := o.w.Close()
	o.w = nil
	return err
}
