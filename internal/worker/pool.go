package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/pipeline"
	"github.com/earnzy/earnzy-push/internal/push"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type Handler interface {
	Handle(ctx context.Context, msg *push.Message) pipeline.Result
}

// Pool runs the notification pipeline for inbound messages on a fixed set of
// workers. Messages are independent; no ordering is kept between them.
type Pool struct {
	handler        Handler
	msgChan        chan *push.Message
	numWorkers     int
	messageTimeout time.Duration
	logger         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex
}

func NewPool(handler Handler, numWorkers, queueSize int, messageTimeout time.Duration, logger *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:        handler,
		msgChan:        make(chan *push.Message, queueSize),
		numWorkers:     numWorkers,
		messageTimeout: messageTimeout,
		logger:         logger.Named("worker_pool"),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("Worker pool started", zap.Int("workers", p.numWorkers), zap.Int("queue_size", cap(p.msgChan)))
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))

	for msg := range p.msgChan {
		log.Debug("Processing message", zap.String("message_id", msg.ID))
		p.process(msg, log)
	}

	log.Debug("Worker exiting")
}

func (p *Pool) process(msg *push.Message, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while handling message",
				zap.String("message_id", msg.ID),
				zap.Any("panic", r))
		}
	}()

	ctx := p.ctx
	if p.messageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.messageTimeout)
		defer cancel()
	}

	res := p.handler.Handle(ctx, msg)
	log.Debug("Message handled", zap.String("message_id", msg.ID), zap.String("outcome", string(res.Outcome)))
}

// Submit queues msg, blocking while the queue is full until ctx is done.
func (p *Pool) Submit(ctx context.Context, msg *push.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("Worker pool is closed, rejecting message", zap.String("message_id", msg.ID))
		return ErrPoolClosed
	}

	select {
	case p.msgChan <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued messages and waits for the workers to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.msgChan)
	p.wg.Wait()
	p.cancel()
	p.logger.Info("Worker pool stopped")
}
