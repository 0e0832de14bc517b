package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return out
}

func TestBatchMessages(t *testing.T) {
	tests := []struct {
		count, size int
		want        []int
	}{
		{0, 10, nil},
		{5, 10, []int{5}},
		{10, 10, []int{10}},
		{25, 10, []int{10, 10, 5}},
	}
	for _, tt := range tests {
		got := batchMessages(messages(tt.count), tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("batchMessages(%d, %d) = %d batches, want %d", tt.count, tt.size, len(got), len(tt.want))
			continue
		}
		for i, batch := range got {
			if len(batch) != tt.want[i] {
				t.Errorf("batch %d has %d messages, want %d", i, len(batch), tt.want[i])
			}
		}
	}
}

func TestRenderMessages_FiltersRolesAndEmpties(t *testing.T) {
	got := renderMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "system", Content: "ignored"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "hi"},
	})
	want := "USER: hello\nASSISTANT: hi"
	if got != want {
		t.Errorf("renderMessages = %q, want %q", got, want)
	}
}

func TestParseFacts(t *testing.T) {
	t.Run("prose wrapped", func(t *testing.T) {
		got, err := parseFacts(`Sure: {"user_facts": ["a", "b"]} done`)
		if err != nil || len(got) != 2 {
			t.Errorf("got %v, %v", got, err)
		}
	})
	t.Run("caps at five", func(t *testing.T) {
		got, err := parseFacts(`{"user_facts": ["1","2","3","4","5","6","7"]}`)
		if err != nil || len(got) != 5 {
			t.Errorf("got %d facts, %v; want 5", len(got), err)
		}
	})
	t.Run("non-strings and blanks dropped", func(t *testing.T) {
		got, err := parseFacts(`{"user_facts": ["ok", 42, "  ", null, "also ok"]}`)
		if err != nil {
			t.Fatalf("parseFacts: %v", err)
		}
		if len(got) != 2 || got[0] != "ok" || got[1] != "also ok" {
			t.Errorf("got %v", got)
		}
	})
	t.Run("no json", func(t *testing.T) {
		if _, err := parseFacts("cannot help with that"); err == nil {
			t.Error("want error for missing JSON")
		}
	})
}

func TestIngestTranscript_ExtractsAndStoresFacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{FactBatchSize: 10, Workers: 2})
	f.complete.output = `{"user_facts": ["Works on infrastructure", "Prefers terse updates"]}`

	res, err := f.pipeline.IngestTranscript(ctx, "alice", "conv-42", messages(8))
	if err != nil {
		t.Fatalf("IngestTranscript: %v", err)
	}
	if res.Batches != 1 || res.Facts != 2 {
		t.Errorf("result = %+v, want 1 batch 2 facts", res)
	}

	idx, err := f.facts.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(idx.Texts) != 2 {
		t.Fatalf("stored facts = %d, want 2", len(idx.Texts))
	}
	for i := range idx.Texts {
		md := idx.Metadata[i]
		if md["type"] != "user_fact" {
			t.Errorf("type = %v", md["type"])
		}
		if md["source"] != "conversation:conv-42" {
			t.Errorf("source = %v", md["source"])
		}
		if md["conversation_id"] != "conv-42" {
			t.Errorf("conversation_id = %v", md["conversation_id"])
		}
	}
}

func TestIngestTranscript_BatchesByTen(t *testing.T) {
	f := newFixture(t, Config{FactBatchSize: 10, Workers: 3})
	f.complete.output = `{"user_facts": []}`

	res, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", messages(25))
	if err != nil {
		t.Fatalf("IngestTranscript: %v", err)
	}
	if res.Batches != 3 {
		t.Errorf("Batches = %d, want 3", res.Batches)
	}
	if f.complete.calls != 3 {
		t.Errorf("extraction calls = %d, want one per batch", f.complete.calls)
	}
}

func TestIngestTranscript_NoFactsIsSuccess(t *testing.T) {
	f := newFixture(t, Config{})
	f.complete.output = `{"user_facts": []}`

	res, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", messages(4))
	if err != nil {
		t.Fatalf("no facts should not fail: %v", err)
	}
	if res.Facts != 0 || res.Write != nil {
		t.Errorf("result = %+v, want nothing written", res)
	}
	if keys, _ := f.blob.List(context.Background(), ""); len(keys) != 0 {
		t.Error("factless run created store objects")
	}
}

func TestIngestTranscript_ExtractionFailureLosesOnlyThatBatch(t *testing.T) {
	f := newFixture(t, Config{FactBatchSize: 10})
	f.complete.output = "not json at all"

	res, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", messages(12))
	if err != nil {
		t.Fatalf("failed batches must not fail the run: %v", err)
	}
	if res.FailedBatches != 2 {
		t.Errorf("FailedBatches = %d, want 2", res.FailedBatches)
	}
}

func TestIngestTranscript_EmbedFailureSkipsStore(t *testing.T) {
	f := newFixture(t, Config{})
	f.complete.output = `{"user_facts": ["a fact"]}`
	f.embedder.err = errors.New("quota exceeded")

	res, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", messages(2))
	if err != nil {
		t.Fatalf("embed failure must degrade, not fail: %v", err)
	}
	if res.Write != nil {
		t.Error("facts were stored despite embedding failure")
	}
	if keys, _ := f.blob.List(context.Background(), ""); len(keys) != 0 {
		t.Error("store objects created despite embedding failure")
	}
}

func TestIngestTranscript_CapsTotalFacts(t *testing.T) {
	// 20 batches each yielding 5 facts would exceed the 50-fact cap.
	f := newFixture(t, Config{FactBatchSize: 1, MaxFacts: 50, Workers: 4})
	f.complete.output = `{"user_facts": ["f1","f2","f3","f4","f5"]}`

	res, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", messages(20))
	if err != nil {
		t.Fatalf("IngestTranscript: %v", err)
	}
	if res.Facts != 50 {
		t.Errorf("Facts = %d, want capped at 50", res.Facts)
	}
}

func TestIngestTranscript_RequiresIdentity(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.pipeline.IngestTranscript(context.Background(), "", "conv", nil); err == nil {
		t.Error("missing username accepted")
	}
	if _, err := f.pipeline.IngestTranscript(context.Background(), "alice", "", nil); err == nil {
		t.Error("missing conversation id accepted")
	}
}

func TestIngestTranscript_ContentTruncatedBeforeSend(t *testing.T) {
	f := newFixture(t, Config{FactBatchSize: 10})
	f.complete.output = `{"user_facts": []}`

	long := []Message{{Role: "user", Content: strings.Repeat("x", 5000)}}
	if _, err := f.pipeline.IngestTranscript(context.Background(), "alice", "conv-1", long); err != nil {
		t.Fatalf("IngestTranscript: %v", err)
	}

	conversation := f.complete.lastContent[strings.Index(f.complete.lastContent, "Conversation to analyze:\n")+len("Conversation to analyze:\n"):]
	if len(conversation) != maxExtractContent {
		t.Errorf("conversation payload = %d chars, want truncated to %d", len(conversation), maxExtractContent)
	}
}
