package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector()

	c.IncStreamStarted()
	c.IncStreamStarted()
	c.IncStreamCompleted()
	c.IncStreamAborted()
	c.IncStreamFailed()
	c.IncLines()
	c.IncLines()
	c.IncLines()
	c.IncEvent("text")
	c.IncEvent("text")
	c.IncEvent("image")
	c.IncUnrecognized()
	c.AddMarkersRecovered(2)
	c.IncFragmentsRecovered()
	c.IncFetchFailure()
	c.IncInlineFallback()
	c.IncFileDropped()
	c.IncImageDecodeFailure()
	c.IncImageMissingContent()
	c.IncAttachmentSaved()
	c.IncSaveFailure()
	c.IncPublishSuccess()
	c.IncPublishFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"StreamsStarted", s.StreamsStarted, 2},
		{"StreamsCompleted", s.StreamsCompleted, 1},
		{"StreamsAborted", s.StreamsAborted, 1},
		{"StreamsFailed", s.StreamsFailed, 1},
		{"Lines", s.Lines, 3},
		{"EventsByKind[text]", s.EventsByKind["text"], 2},
		{"EventsByKind[image]", s.EventsByKind["image"], 1},
		{"Unrecognized", s.Unrecognized, 1},
		{"MarkersRecovered", s.MarkersRecovered, 2},
		{"FragmentsRecovered", s.FragmentsRecovered, 1},
		{"FetchFailures", s.FetchFailures, 1},
		{"InlineFallbacks", s.InlineFallbacks, 1},
		{"FilesDropped", s.FilesDropped, 1},
		{"ImageDecodeFailures", s.ImageDecodeFailures, 1},
		{"ImageMissingContent", s.ImageMissingContent, 1},
		{"AttachmentsSaved", s.AttachmentsSaved, 1},
		{"SaveFailures", s.SaveFailures, 1},
		{"PublishSuccess", s.PublishSuccess, 1},
		{"PublishFailure", s.PublishFailure, 1},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Errorf("%s = %d, want %d", ck.name, ck.got, ck.want)
		}
	}
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector
	c.IncStreamStarted()
	c.IncEvent("file")
	c.AddMarkersRecovered(1)

	s := c.Snapshot()
	if s.StreamsStarted != 0 {
		t.Errorf("nil collector snapshot should be zero, got %+v", s)
	}
	if s.EventsByKind == nil {
		t.Error("nil collector snapshot should have a non-nil map")
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector()
	c.IncEvent("text")

	s := c.Snapshot()
	s.EventsByKind["text"] = 99

	if got := c.Snapshot().EventsByKind["text"]; got != 1 {
		t.Errorf("mutating a snapshot leaked into the collector: %d", got)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncLines()
			c.IncEvent("text")
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.Lines != 50 {
		t.Errorf("Lines = %d, want 50", s.Lines)
	}
	if s.EventsByKind["text"] != 50 {
		t.Errorf("EventsByKind[text] = %d, want 50", s.EventsByKind["text"])
	}
}
