package perf

import (
	"context"
	"time"
)

// Tracks timing blocks over the course of a single logical operation
// (usually one web request in the consuming application). A nil
// *RequestPerf is valid and records nothing, so library code can always
// call ExtractPerf and start blocks unconditionally.
type RequestPerf struct {
	Name   string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

type BlockHandle struct {
	perf *RequestPerf
	idx  int
}

func MakeNewRequestPerf(name string) *RequestPerf {
	return &RequestPerf{
		Name:  name,
		Start: time.Now(),
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	for rp.EndBlock() {
	}
	rp.End = time.Now()
}

func (rp *RequestPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return nil
	}
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{perf: rp, idx: len(rp.Blocks) - 1}
}

// Ends the most recently started block that is still open. Returns false
// when there was nothing to end.
func (rp *RequestPerf) EndBlock() bool {
	if rp == nil {
		return false
	}
	for i := len(rp.Blocks) - 1; i >= 0; i -= 1 {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (b *BlockHandle) End() {
	if b == nil {
		return
	}
	if b.perf.Blocks[b.idx].End.IsZero() {
		b.perf.Blocks[b.idx].End = time.Now()
	}
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

type perfContextKey struct{}

func AttachPerfToContext(ctx context.Context, rp *RequestPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, rp)
}

func ExtractPerf(ctx context.Context) *RequestPerf {
	rp, _ := ctx.Value(perfContextKey{}).(*RequestPerf)
	return rp
}
