package relay

import (
	"fmt"
)

// Context carries the server into frame handlers.
type Context struct {
	S *Server
}

type HandlerFunc func(ctx *Context, f *Frame, c *Client) error

// Dispatcher 按帧类型分发到对应处理器，一条连接上的帧按到达顺序串行处理。
type Dispatcher struct {
	handlers map[FrameType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameType]HandlerFunc)}
}

func (d *Dispatcher) Register(t FrameType, h HandlerFunc) {
	d.handlers[t] = h
}

func (d *Dispatcher) Dispatch(ctx *Context, f *Frame, c *Client) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return fmt.Errorf("no handler for type=%s", f.Type)
	}
	return h(ctx, f, c)
}
