package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

// queueItem is one unit of text awaiting synthesis and playback. Items play
// strictly in insertion order regardless of synthesis completion order.
type queueItem struct {
	seq   int
	text  string
	audio []byte
	ready bool
	// failed items are skipped by the driver instead of blocking the queue.
	failed bool
}

// SpeechQueueCallbacks expose queue lifecycle to the controller. All callbacks
// are invoked from queue goroutines; handlers must not call back into the
// queue synchronously.
type SpeechQueueCallbacks struct {
	// OnPlaybackStarted fires when an item begins playing.
	OnPlaybackStarted func(text string)
	// OnStateChanged fires whenever the playing flag or queue depth changes.
	OnStateChanged func(playing bool, depth int)
	// OnItemError fires when synthesis or playback fails for one item. The
	// item is skipped; the queue keeps running.
	OnItemError func(text string, err error)
}

// SpeechQueue guarantees in-order playback of synthesized speech for text
// chunks submitted out of band. Synthesis runs concurrently per item; the
// playback driver gates each item on the completion of everything before it.
type SpeechQueue struct {
	synthesizer repositories.SpeechSynthesizer
	player      repositories.AudioPlayer
	opts        repositories.SynthesisOptions
	callbacks   SpeechQueueCallbacks
	logger      *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	items   []*queueItem
	nextSeq int
	// generation invalidates in-flight synthesis after Stop: late results from
	// an old generation are dropped, never played.
	generation int
	playing    bool
	closed     bool

	playCancel context.CancelFunc
}

// NewSpeechQueue creates a speech queue and starts its playback driver.
func NewSpeechQueue(
	synthesizer repositories.SpeechSynthesizer,
	player repositories.AudioPlayer,
	opts repositories.SynthesisOptions,
	callbacks SpeechQueueCallbacks,
	logger *zap.Logger,
) *SpeechQueue {
	q := &SpeechQueue{
		synthesizer: synthesizer,
		player:      player,
		opts:        opts,
		callbacks:   callbacks,
		logger:      logger,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.drive()
	return q
}

// Enqueue appends text at the tail and triggers its synthesis asynchronously.
// It never blocks the caller.
func (q *SpeechQueue) Enqueue(text string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	item := &queueItem{seq: q.nextSeq, text: text}
	q.nextSeq++
	q.items = append(q.items, item)
	generation := q.generation
	depth := len(q.items)
	playing := q.playing
	q.mu.Unlock()

	q.notifyState(playing, depth)

	go q.synthesize(item, generation)
}

// Stop halts any in-progress playback, discards all queued items and resets
// the queue. Synthesis already in flight is allowed to finish; its results are
// dropped. Stopping an idle queue is a no-op.
func (q *SpeechQueue) Stop() {
	q.mu.Lock()
	q.generation++
	q.items = nil
	if q.playCancel != nil {
		q.playCancel()
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Close stops the queue and shuts down the playback driver.
func (q *SpeechQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.generation++
	q.items = nil
	if q.playCancel != nil {
		q.playCancel()
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Depth returns the number of items not yet fully played.
func (q *SpeechQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Playing reports whether audio is currently playing.
func (q *SpeechQueue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

func (q *SpeechQueue) synthesize(item *queueItem, generation int) {
	audio, err := q.synthesizer.Synthesize(context.Background(), item.text, q.opts)

	q.mu.Lock()
	if q.generation != generation {
		// Stop happened while synthesis was in flight; drop the result.
		q.mu.Unlock()
		return
	}
	if err != nil {
		item.failed = true
	} else {
		item.audio = audio
		item.ready = true
	}
	q.mu.Unlock()
	q.cond.Broadcast()

	if err != nil {
		q.logger.Warn("Speech synthesis failed, skipping item",
			zap.Int("seq", item.seq),
			zap.Error(err))
		if q.callbacks.OnItemError != nil {
			q.callbacks.OnItemError(item.text, err)
		}
	}
}

// drive is the single playback driver loop: the only actor that advances the
// cursor and removes items, so enqueue and playback never race.
func (q *SpeechQueue) drive() {
	for {
		q.mu.Lock()
		for !q.closed && (len(q.items) == 0 || (!q.items[0].ready && !q.items[0].failed)) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}

		item := q.items[0]
		if item.failed {
			q.items = q.items[1:]
			depth := len(q.items)
			playing := q.playing
			q.mu.Unlock()
			q.notifyState(playing, depth)
			continue
		}

		generation := q.generation
		ctx, cancel := context.WithCancel(context.Background())
		q.playCancel = cancel
		q.playing = true
		depth := len(q.items)
		q.mu.Unlock()

		if q.callbacks.OnPlaybackStarted != nil {
			q.callbacks.OnPlaybackStarted(item.text)
		}
		q.notifyState(true, depth)

		err := q.player.Play(ctx, item.audio)
		cancel()

		q.mu.Lock()
		q.playCancel = nil
		if q.generation == generation && len(q.items) > 0 && q.items[0] == item {
			q.items = q.items[1:]
		}
		q.playing = false
		depth = len(q.items)
		q.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			q.logger.Warn("Audio playback failed, skipping item",
				zap.Int("seq", item.seq),
				zap.Error(err))
			if q.callbacks.OnItemError != nil {
				q.callbacks.OnItemError(item.text, err)
			}
		}

		q.notifyState(false, depth)
	}
}

func (q *SpeechQueue) notifyState(playing bool, depth int) {
	if q.callbacks.OnStateChanged != nil {
		q.callbacks.OnStateChanged(playing, depth)
	}
}
