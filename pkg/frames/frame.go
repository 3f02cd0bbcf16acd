package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio   Kind = "audio"
	KindText    Kind = "text"
	KindControl Kind = "control"
)

type ControlCode string

// ControlFlush marks an utterance boundary reported by the recognizer.
const ControlFlush ControlCode = "flush"

// Frame is the unit of data exchanged between relay components: microphone
// audio on its way to the transcription link, transcript and question text,
// and control signals.
type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

type AudioFrame struct {
	pts    int64
	data   []byte
	rate   int
	ch     int
	meta   map[string]string
	pooled bool
}

func NewAudioFrame(sessionID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(sessionID, meta),
	}
}

func NewAudioFrameFromPool(sessionID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return AudioFrame{
		pts:    pts,
		data:   buf,
		rate:   rate,
		ch:     ch,
		meta:   mergeMeta(sessionID, meta),
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseAudioBuf(af.data)
		return true
	}
	return false
}

type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(sessionID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(sessionID, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// IsFinal reports whether a transcript text frame carries a finalized fragment.
func (t TextFrame) IsFinal() bool { return t.meta[MetaIsFinal] == "true" }

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(sessionID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(sessionID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(sessionID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[sessionID] + time.Millisecond.Nanoseconds()
	g.value[sessionID] = v
	return v
}

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}

func mergeMeta(sessionID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if sessionID != "" {
		out[MetaSessionID] = sessionID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
