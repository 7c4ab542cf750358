package events

import (
	"sync"
	"testing"
	"time"

	"tradecore/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	name   string
	events []models.Event
	err    error
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Publish(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Seq
	}
	return out
}

func TestBus_StampsMonotonicSeq(t *testing.T) {
	sink := &captureSink{name: "capture"}
	bus := NewBus(16, nil, sink)
	fixed := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	bus.AccountChanged(&models.Account{ID: "sim"})
	bus.OrderChanged(&models.Order{ID: "o-1", AccountID: "sim", StrategyID: "s1"})
	bus.ViolationChanged(&models.RuleViolation{ID: "v-1", AccountID: "topstep"})

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}
	want := []models.EventType{models.EventAccountUpdate, models.EventOrderUpdate, models.EventRiskViolation}
	for i, ev := range sink.events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d: seq = %d", i, ev.Seq)
		}
		if ev.Type != want[i] {
			t.Errorf("event %d: type = %s, want %s", i, ev.Type, want[i])
		}
		if !ev.Timestamp.Equal(fixed) {
			t.Errorf("event %d: timestamp not stamped", i)
		}
	}
	if sink.events[1].StrategyID != "s1" || sink.events[2].AccountID != "topstep" {
		t.Errorf("routing keys not copied: %+v", sink.events)
	}
	if bus.LastSeq() != 3 {
		t.Errorf("LastSeq = %d", bus.LastSeq())
	}
}

func TestBus_NilPayloadsIgnored(t *testing.T) {
	sink := &captureSink{name: "capture"}
	bus := NewBus(0, nil, sink)

	bus.AccountChanged(nil)
	bus.OrderChanged(nil)
	bus.ViolationChanged(nil)

	if len(sink.events) != 0 || bus.LastSeq() != 0 {
		t.Errorf("nil payloads must not produce events")
	}
}

func TestBus_StrategyTransitionStampedByBus(t *testing.T) {
	sink := &captureSink{name: "capture"}
	bus := NewBus(0, nil, sink)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return now }
	at := now.Add(-time.Second)

	bus.AccountChanged(&models.Account{ID: "sim"})
	bus.StrategyTransitioned(&models.StrategyPerformance{StrategyID: "s1"}, models.TransitionEvent{
		StrategyID: "s1", From: models.ModeLive, To: models.ModePaper, Timestamp: at,
	})

	ev := sink.events[1]
	if ev.Type != models.EventStrategyTransition || ev.StrategyID != "s1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.Timestamp.Equal(now) || ev.Timestamp.Before(sink.events[0].Timestamp) {
		t.Errorf("timestamp = %v, want bus time %v", ev.Timestamp, now)
	}
	payload, ok := ev.Payload.(StrategyTransitionPayload)
	if !ok || payload.Transition.To != models.ModePaper || payload.Strategy.StrategyID != "s1" {
		t.Fatalf("unexpected payload %+v", ev.Payload)
	}
	if !payload.Transition.Timestamp.Equal(at) {
		t.Errorf("transition time = %v, want %v", payload.Transition.Timestamp, at)
	}
}

func TestBus_TimestampsNeverGoBack(t *testing.T) {
	sink := &captureSink{name: "capture"}
	bus := NewBus(0, nil, sink)
	clock := []time.Time{
		time.Date(2026, 3, 2, 15, 0, 2, 0, time.UTC),
		time.Date(2026, 3, 2, 15, 0, 1, 0, time.UTC),
		time.Date(2026, 3, 2, 15, 0, 3, 0, time.UTC),
	}
	i := 0
	bus.now = func() time.Time { ts := clock[i]; i++; return ts }

	for n := 0; n < len(clock); n++ {
		bus.AccountChanged(&models.Account{ID: "sim"})
	}
	for n := 1; n < len(sink.events); n++ {
		if sink.events[n].Timestamp.Before(sink.events[n-1].Timestamp) {
			t.Errorf("event %d timestamp %v before %v", n, sink.events[n].Timestamp, sink.events[n-1].Timestamp)
		}
	}
}

func TestBus_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &captureSink{name: "bad", err: ErrSinkFull}
	good := &captureSink{name: "good"}
	bus := NewBus(0, nil, bad, good)

	bus.AccountChanged(&models.Account{ID: "sim"})

	if len(good.events) != 1 {
		t.Errorf("healthy sink should still receive the event")
	}
}

func TestBus_Since(t *testing.T) {
	bus := NewBus(3, nil)
	for i := 0; i < 5; i++ {
		bus.AccountChanged(&models.Account{ID: "sim"})
	}

	tests := []struct {
		name         string
		since        uint64
		wantSeqs     []uint64
		wantComplete bool
	}{
		{"up to date", 5, nil, true},
		{"within history", 3, []uint64{4, 5}, true},
		{"edge of history", 2, []uint64{3, 4, 5}, true},
		{"history evicted", 0, []uint64{3, 4, 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, complete := bus.Since(tt.since)
			if complete != tt.wantComplete {
				t.Errorf("complete = %v, want %v", complete, tt.wantComplete)
			}
			if len(got) != len(tt.wantSeqs) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.wantSeqs))
			}
			for i, ev := range got {
				if ev.Seq != tt.wantSeqs[i] {
					t.Errorf("event %d seq = %d, want %d", i, ev.Seq, tt.wantSeqs[i])
				}
			}
		})
	}
}

func TestBus_ConcurrentPublishOrdered(t *testing.T) {
	sink := &captureSink{name: "capture"}
	bus := NewBus(0, nil)
	bus.AddSink(sink)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.AccountChanged(&models.Account{ID: "sim"})
		}()
	}
	wg.Wait()

	seqs := sink.seqs()
	if len(seqs) != 50 {
		t.Fatalf("expected 50 events, got %d", len(seqs))
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("sink saw seq %d at position %d", s, i)
		}
	}
}
