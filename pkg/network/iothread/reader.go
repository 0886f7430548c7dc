package iothread

import (
	"bufio"
	"io"

	dio "github.com/nspcc-dev/dsocket/pkg/io"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"go.uber.org/zap"
)

const readBufferSize = 64 * 1024

// Reader is the loop decoding frames from a stream.
type Reader struct {
	*Loop

	br     *dio.BinReader
	codec  frame.Codec
	sender Broadcaster
	log    *zap.Logger
}

// NewReader creates a reader loop over r, it's not started.
func NewReader(r io.Reader, codec frame.Codec, sender Broadcaster, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	rd := &Reader{
		br:     dio.NewBinReaderFromIO(bufio.NewReaderSize(r, readBufferSize)),
		codec:  codec,
		sender: sender,
		log:    log,
	}
	rd.Loop = newLoop("read", log, rd.beforeLoop, rd.read, rd.loopFinish)
	return rd
}

func (r *Reader) beforeLoop() {
	r.sender.Broadcast(action.ReadThreadStart, nil)
}

func (r *Reader) read() error {
	p, err := r.codec.DecodeFrom(r.br)
	if err != nil {
		return err
	}
	r.sender.Broadcast(action.ReadComplete, p)
	return nil
}

func (r *Reader) loopFinish(err error) {
	err = cleanCause(err)
	if err != nil {
		r.log.Warn("read loop is dead", zap.Error(err))
	}
	r.sender.Broadcast(action.ReadThreadShutdown, err)
}
