package log

import (
	"os"
	"sync"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	journal, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	events := []Entry{
		{Event: EventSessionStarted, SessionID: "s1"},
		{Event: EventRenderFailed, SessionID: "s1", Attempt: 2, Error: "boom"},
		{Event: EventSessionStarted, SessionID: "s2"},
	}
	for _, e := range events {
		if err := journal.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := journal.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[1].Error != "boom" || got[1].Attempt != 2 {
		t.Errorf("unexpected event: %+v", got[1])
	}
	if got[0].Time.IsZero() {
		t.Error("Append should stamp the time")
	}

	s1, err := journal.ForSession("s1")
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	if len(s1) != 2 {
		t.Errorf("ForSession(s1): got %d events, want 2", len(s1))
	}
}

func TestReadAllMissingFile(t *testing.T) {
	journal, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := journal.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events, want 0", len(got))
	}
}

func TestReadAllCorruptLine(t *testing.T) {
	dir := t.TempDir()
	journal, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.WriteFile(journal.Path(), []byte("{not json}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := journal.ReadAll(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNilJournalDiscards(t *testing.T) {
	var journal *Journal
	if err := journal.Append(Entry{Event: EventSessionFinished}); err != nil {
		t.Fatalf("nil journal Append: %v", err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	journal, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = journal.Append(Entry{Event: EventCodingStarted, Attempt: n})
		}(i)
	}
	wg.Wait()

	got, err := journal.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("got %d events, want 20", len(got))
	}
}
