package middleware

import "github.com/touka-aoi/oneshot/server/peer"

type Context struct {
	Data     []byte
	Metadata map[string]interface{}
	Peer     peer.Endpoint
}

type NextFunc func(*Context) error
type MiddlewareFunc func(*Context, NextFunc) error

type Pipeline struct {
	middlewares []MiddlewareFunc
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]MiddlewareFunc, 0),
	}
}

func (p *Pipeline) Use(middleware MiddlewareFunc) *Pipeline {
	p.middlewares = append(p.middlewares, middleware)
	return p
}

func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

func (p *Pipeline) Execute(ctx *Context) error {
	return p.executeMiddleware(0, ctx)
}

func (p *Pipeline) executeMiddleware(index int, ctx *Context) error {
	if index >= len(p.middlewares) {
		return nil
	}

	next := func(ctx *Context) error {
		return p.executeMiddleware(index+1, ctx)
	}

	return p.middlewares[index](ctx, next)
}

func NewContext(data []byte, peer peer.Endpoint) *Context {
	return &Context{
		Data:     data,
		Peer:     peer,
		Metadata: make(map[string]interface{}),
	}
}
