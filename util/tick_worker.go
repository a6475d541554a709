package util

import (
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/logger"
	"go.uber.org/zap"
)

type TickWorker struct {
	stop         chan struct{}
	tickInterval time.Duration
	wg           *sync.WaitGroup
	name         string
	fn           func(now time.Time)
	running      bool
	mu           sync.Mutex
}

func NewTickWorker(name string, interval time.Duration, stop chan struct{}, fn func(now time.Time), wg *sync.WaitGroup) *TickWorker {
	return &TickWorker{
		stop:         stop,
		tickInterval: interval,
		wg:           wg,
		fn:           fn,
		name:         name,
	}
}

func (tw *TickWorker) Start() {
	ticker := time.NewTicker(tw.tickInterval)
	tw.wg.Add(1)
	go func() {
		defer tw.wg.Done()
		for {
			select {
			case now := <-ticker.C:
				tw.fn(now)
			case <-tw.stop:
				logger.Info("stopping tick worker", zap.String("worker", tw.name))
				ticker.Stop()
				tw.setRunning(false)
				return
			}
		}
	}()
	tw.setRunning(true)
	logger.Info("tick worker started", zap.String("worker", tw.name), zap.Duration("interval", tw.tickInterval))
}

func (tw *TickWorker) Stop() {
	tw.stop <- struct{}{}
}

func (tw *TickWorker) IsRunning() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.running
}

func (tw *TickWorker) setRunning(r bool) {
	tw.mu.Lock()
	tw.running = r
	tw.mu.Unlock()
}
