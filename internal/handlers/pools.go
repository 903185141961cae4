package handlers

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxPooledBuffer keeps unusually large buffers out of the pools.
const maxPooledBuffer = 64 << 10

// bufferPool provides reusable byte buffers to reduce GC pressure.
type bufferPool struct {
	name string
	size int
	pool sync.Pool
}

func newBufferPool(name string, size int) *bufferPool {
	p := &bufferPool{name: name, size: size}
	p.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, size))
	}
	return p
}

func (p *bufferPool) get() *bytes.Buffer {
	v := p.pool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Str("pool", p.name).Interface("got_type", v).Msg("Unexpected type from buffer pool")
		return bytes.NewBuffer(make([]byte, 0, p.size))
	}
	return buf
}

func (p *bufferPool) put(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

var (
	requestBuffers  = newBufferPool("request", 4096)
	responseBuffers = newBufferPool("response", 8192) // download listings can be long
)

func getBuffer() *bytes.Buffer { return requestBuffers.get() }
func putBuffer(buf *bytes.Buffer) { requestBuffers.put(buf) }
func getResponseBuffer() *bytes.Buffer { return responseBuffers.get() }
func putResponseBuffer(buf *bytes.Buffer) { responseBuffers.put(buf) }
