// Package logging builds the slog loggers used by the trainer binaries.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
	FormatText   = "text"
)

// New returns a logger writing to w. format is one of pretty, json or text;
// level is a slog level name such as "debug" or "warn".
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatPretty:
		return slog.New(NewPrettyJSONHandler(w, true, opts)), nil
	case FormatJSON:
		return slog.New(NewPrettyJSONHandler(w, false, opts)), nil
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return lvl, nil
}

// PrettyJSONHandler writes one JSON object per record. Keys appear in a stable order:
// time, level, msg, source, then attributes in the order they were added.
// With indent set the object is spread over several lines for reading in a
// terminal.
type PrettyJSONHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool
	indent    bool

	attrs  []scopedAttr
	groups []string
}

// scopedAttr is an attribute added by WithAttrs together with the groups that
// were open at the time.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func NewPrettyJSONHandler(w io.Writer, indent bool, opts *slog.HandlerOptions) *PrettyJSONHandler {
	h := &PrettyJSONHandler{
		w:      w,
		mu:     &sync.Mutex{},
		level:  slog.LevelInfo,
		indent: indent,
	}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *PrettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}

	obj := &object{}
	obj.set("time", when.Format(time.RFC3339Nano))
	obj.set("level", r.Level.String())
	obj.set("msg", r.Message)
	if h.addSource {
		if src := sourceFromPC(r.PC); src != "" {
			obj.set("source", src)
		}
	}

	for _, sa := range h.attrs {
		obj.within(sa.groups).add(sa.attr)
	}
	if r.NumAttrs() > 0 {
		dst := obj.within(h.groups)
		r.Attrs(func(a slog.Attr) bool {
			dst.add(a)
			return true
		})
	}

	var buf bytes.Buffer
	obj.encode(&buf)
	out := buf.Bytes()
	if h.indent {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, out, "", "  "); err == nil {
			out = pretty.Bytes()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(append(out, '\n'))
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return &clone
}

func (h *PrettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// object is an insertion-ordered JSON object.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) set(k string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

func (o *object) child(k string) *object {
	if c, ok := o.values[k].(*object); ok {
		return c
	}
	c := &object{}
	o.set(k, c)
	return c
}

func (o *object) within(groups []string) *object {
	dst := o
	for _, g := range groups {
		dst = dst.child(g)
	}
	return dst
}

func (o *object) add(a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		// An empty key inlines the group's members.
		dst := o
		if a.Key != "" {
			dst = o.child(a.Key)
		}
		for _, ga := range v.Group() {
			dst.add(ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	o.set(a.Key, valueToAny(v))
}

func (o *object) encode(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		switch v := o.values[k].(type) {
		case *object:
			v.encode(buf)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				b = []byte(strconv.Quote(fmt.Sprint(v)))
			}
			buf.Write(b)
		}
	}
	buf.WriteByte('}')
}

func valueToAny(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.String()
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
