// Package pipeline connects the capture queue to the monitors: it pops
// payloads, parses them, runs the network checks and batches the
// resulting reports to the configured writer.
package pipeline

import (
	"context"
	"sync"
	"time"

	"phishguard/internal/aggregate"
	inputredis "phishguard/internal/input/redis"
	"phishguard/internal/logger"
	"phishguard/internal/metrics"
	"phishguard/internal/netmon"
	"phishguard/internal/transform/requestjson"
	"phishguard/pkg/models"
)

// RequestPipeline consumes queued request events and drives the
// network monitor.
type RequestPipeline struct {
	consumer      *inputredis.Consumer
	monitor       *netmon.Monitor
	agg           *aggregate.Aggregator
	writer        ReportWriter
	metrics       *metrics.Metrics
	workers       int
	batchSize     int
	flushInterval time.Duration

	reportCh chan models.Report
}

// NewRequestPipeline creates the queue-to-monitor pipeline. The
// metrics argument may be nil.
func NewRequestPipeline(consumer *inputredis.Consumer, monitor *netmon.Monitor, agg *aggregate.Aggregator, writer ReportWriter, m *metrics.Metrics, workers, batchSize int, flushInterval time.Duration) *RequestPipeline {
	return &RequestPipeline{
		consumer:      consumer,
		monitor:       monitor,
		agg:           agg,
		writer:        writer,
		metrics:       m,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		reportCh:      make(chan models.Report, 1024),
	}
}

// Report receives one monitor report for batching. The pipeline is
// registered as a sink alongside the aggregator. The send never
// blocks: a stalled writer must not stall the interception path, so a
// full buffer drops the report and counts the drop.
func (p *RequestPipeline) Report(r models.Report) {
	if p.metrics != nil {
		p.metrics.ObserveReport(r)
		if r.Kind != models.KindFingerprinting && r.Kind != models.KindBehavioral {
			p.metrics.SetNetworkScore(r.Score)
		}
	}
	select {
	case p.reportCh <- r:
	default:
		logger.Warnf("report buffer full, dropping %s report for %s", r.Kind, r.Domain)
		if p.metrics != nil {
			p.metrics.ObserveReportDrop()
		}
	}
}

// Run starts the pipeline loop and blocks until the context ends.
func (p *RequestPipeline) Run(ctx context.Context) error {
	logger.Infof("request pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(msgCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *RequestPipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("failed to close report writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *RequestPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("failed to pop queue message: %v", err)
			if p.metrics != nil {
				p.metrics.ObserveQueueError()
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			continue
		}
		out <- payload
	}
}

func (p *RequestPipeline) workerLoop(in <-chan []byte) {
	for payload := range in {
		event, err := requestjson.Parse(payload)
		if err != nil {
			logger.Warnf("failed to parse request payload: %v", err)
			if p.metrics != nil {
				p.metrics.ObserveQueueError()
			}
			continue
		}

		decision := p.monitor.HandleRequest(event)
		p.agg.RecordRequest(decision.Action == netmon.ActionBlock)
		if p.metrics != nil {
			p.metrics.ObserveRequest(decision.Action.String())
		}
		if decision.Action == netmon.ActionBlock {
			logger.Debugf("blocked %s (%s)", decision.Domain, decision.Reason)
		}
	}
}

func (p *RequestPipeline) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.Report

	flush := func() {
		if p.writer == nil || len(batch) == 0 {
			batch = nil
			return
		}
		for {
			if err := p.writer.WriteReports(batch); err != nil {
				logger.Errorf("failed to write reports: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			batch = nil
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
			if p.metrics != nil {
				p.metrics.SetState(p.agg.QueryStatistics())
			}
		case r := <-p.reportCh:
			report := r
			batch = append(batch, &report)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}

// Fanout duplicates reports to several sinks in order.
type Fanout []netmon.Sink

// Report forwards to every sink.
func (f Fanout) Report(r models.Report) {
	for _, sink := range f {
		sink.Report(r)
	}
}
