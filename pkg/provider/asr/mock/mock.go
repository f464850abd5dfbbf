// Package mock provides a scriptable asr.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/types"
)

// Compile-time assertion that Client implements asr.Client.
var _ asr.Client = (*Client)(nil)

// Client is a scriptable recognition client. TranscribeFunc, when set, is
// invoked for every call; otherwise each segment's text is looked up in
// Texts by sequence number, falling back to Default.
type Client struct {
	// TranscribeFunc overrides all other behaviour when non-nil.
	TranscribeFunc func(ctx context.Context, seg *types.Segment) (types.RecognitionResult, error)

	// Texts maps segment sequence numbers to canned transcripts.
	Texts map[uint64]string

	// Default is returned for sequences not present in Texts.
	Default string

	mu    sync.Mutex
	calls []uint64
}

// Transcribe implements asr.Client.
func (c *Client) Transcribe(ctx context.Context, seg *types.Segment) (types.RecognitionResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, seg.Sequence)
	c.mu.Unlock()

	if c.TranscribeFunc != nil {
		return c.TranscribeFunc(ctx, seg)
	}
	text := c.Default
	if t, ok := c.Texts[seg.Sequence]; ok {
		text = t
	}
	if text == "" {
		return types.RecognitionResult{}, &asr.Error{Kind: asr.EmptyResult}
	}
	return types.RecognitionResult{Sequence: seg.Sequence, Text: text}, nil
}

// Calls returns the sequence numbers of all Transcribe invocations so far.
func (c *Client) Calls() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.calls))
	copy(out, c.calls)
	return out
}
