// Package mock provides a test double for the transcribe.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: transcribe.Result{Text: "hello"}}
//	res, _ := p.Transcribe(ctx, req)
//	calls := p.Calls()
package mock

import (
	"context"
	"sync"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. SegmentID and SessionID are copied
	// from the request when left zero.
	Result transcribe.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed
	// or ctx is done.
	Block chan struct{}

	calls []transcribe.Request
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	res, err, block := p.Result, p.Err, p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return transcribe.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return transcribe.Result{}, err
	}
	if res.SegmentID == 0 {
		res.SegmentID = req.SegmentID
	}
	if res.SessionID == "" {
		res.SessionID = req.SessionID
	}
	return res, nil
}

// Calls returns a copy of every request received. Thread-safe.
func (p *Provider) Calls() []transcribe.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transcribe.Request(nil), p.calls...)
}

// SetErr replaces Err. Thread-safe.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
