package pipeline

import (
	"testing"
	"time"

	"phishguard/pkg/models"
)

func TestReportNeverBlocksWhenBufferFull(t *testing.T) {
	// No running write loop: the buffer fills and stays full.
	p := NewRequestPipeline(nil, nil, nil, nil, nil, 1, 10, 0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(p.reportCh)+50; i++ {
			p.Report(models.Report{Kind: models.KindDoHUsage, Domain: "resolver.example.net"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("report submission blocked on a full buffer")
	}
	if len(p.reportCh) != cap(p.reportCh) {
		t.Fatalf("buffer = %d/%d; want full", len(p.reportCh), cap(p.reportCh))
	}
}

type recordSink struct {
	reports []models.Report
}

func (s *recordSink) Report(r models.Report) { s.reports = append(s.reports, r) }

func TestFanoutForwardsToEverySink(t *testing.T) {
	first := &recordSink{}
	second := &recordSink{}
	f := Fanout{first, second}

	f.Report(models.Report{Kind: models.KindCCServer, Domain: "panel.onion"})

	if len(first.reports) != 1 || len(second.reports) != 1 {
		t.Fatalf("fanout delivered %d/%d reports; want 1/1", len(first.reports), len(second.reports))
	}
}
