package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
)

// printer writes connection events to the prompt output.
type printer struct {
	action.Adapter

	lock sync.Mutex
	w    io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.lock.Lock()
	defer p.lock.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) OnConnectionSuccess(info endpoint.Info) {
	p.printf("[%s] connected\n", info)
}

func (p *printer) OnConnectionFailed(info endpoint.Info, err error) {
	p.printf("[%s] connection failed: %s\n", info, err)
}

func (p *printer) OnDisconnection(info endpoint.Info, err error) {
	if err != nil {
		p.printf("[%s] disconnected: %s\n", info, err)
		return
	}
	p.printf("[%s] disconnected\n", info)
}

func (p *printer) OnReadComplete(info endpoint.Info, pkt *frame.Packet) {
	p.printf("[%s] < %q\n", info, pkt.Body)
}
