package retrain

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
)

// ErrPromoterStopped is returned when a decision is submitted after the
// promoter's loop has exited
var ErrPromoterStopped = errors.New("promoter stopped")

// Publisher makes an artifact the champion of its segment, provided the
// segment is still at the expected version
type Publisher interface {
	PublishFrom(ctx context.Context, artifact *models.ModelArtifact, expected int64) (*registry.Champion, error)
}

// SwapHook runs after a successful swap. previous is nil on bootstrap.
type SwapHook func(previous, current *registry.Champion)

// Decision is a finished evaluation handed to the promoter
type Decision struct {
	Result    models.BacktestResult
	Candidate *models.ModelArtifact
	Previous  *registry.Champion

	reply chan SwapResult
}

// SwapResult reports what the promoter did with a decision
type SwapResult struct {
	Champion *registry.Champion
	Err      error
}

// Promoter is the single consumer of evaluation decisions. It performs only
// the swap, so the active pointer of every segment has one writer.
type Promoter struct {
	publisher Publisher
	hooks     []SwapHook
	decisions chan Decision
	done      chan struct{}
}

// NewPromoter creates a promoter. Hooks run in order after each swap.
func NewPromoter(publisher Publisher, hooks ...SwapHook) *Promoter {
	return &Promoter{
		publisher: publisher,
		hooks:     hooks,
		decisions: make(chan Decision),
		done:      make(chan struct{}),
	}
}

// Run consumes decisions until ctx is done
func (p *Promoter) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.decisions:
			d.reply <- p.apply(ctx, d)
		}
	}
}

func (p *Promoter) apply(ctx context.Context, d Decision) SwapResult {
	if !d.Result.Promote {
		return SwapResult{Champion: d.Previous}
	}
	var expected int64
	if d.Previous != nil {
		expected = d.Previous.Version
	}
	champion, err := p.publisher.PublishFrom(ctx, d.Candidate, expected)
	if err != nil {
		return SwapResult{Champion: d.Previous, Err: fmt.Errorf("swap failed: %w", err)}
	}
	for _, hook := range p.hooks {
		hook(d.Previous, champion)
	}
	return SwapResult{Champion: champion}
}

// Submit hands a decision to the running promoter and waits for the swap
func (p *Promoter) Submit(ctx context.Context, d Decision) (SwapResult, error) {
	d.reply = make(chan SwapResult, 1)
	select {
	case p.decisions <- d:
	case <-p.done:
		return SwapResult{}, ErrPromoterStopped
	case <-ctx.Done():
		return SwapResult{}, ctx.Err()
	}
	return <-d.reply, nil
}
