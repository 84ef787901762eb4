package retrieval

import (
	"testing"

	"pulsepress/internal/library"
)

func corpusChunk(id, itemID, text string) *library.Chunk {
	return &library.Chunk{ID: id, ItemID: itemID, Text: text, Indexed: true}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The GLP-1 agonists reduced HbA1c in patients with type 2 diabetes.")
	want := []string{"glp-1", "agonists", "reduced", "hba1c", "patients", "type", "diabetes"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTokenize_DropsStopwordsAndShortTokens(t *testing.T) {
	got := Tokenize("it is a of to Z")
	if len(got) != 0 {
		t.Errorf("Tokenize(stopwords) = %v, want empty", got)
	}
}

func TestBM25_RanksMatchingChunkFirst(t *testing.T) {
	bm25 := NewBM25()
	bm25.Index([]*library.Chunk{
		corpusChunk("c1", "i1", "Statin therapy lowered LDL cholesterol in the treatment arm."),
		corpusChunk("c2", "i2", "The questionnaire covered sleep quality and exercise habits."),
		corpusChunk("c3", "i3", "Metformin remained first-line therapy for type 2 diabetes."),
	})

	hits := bm25.TopK("statin cholesterol", 10)
	if len(hits) == 0 {
		t.Fatal("expected hits for matching query")
	}
	if hits[0].ChunkID != "c1" {
		t.Errorf("top hit = %s, want c1", hits[0].ChunkID)
	}
	for _, h := range hits {
		if h.ChunkID == "c2" {
			t.Error("c2 shares no terms with the query and should score zero")
		}
	}
}

func TestBM25_RareTermOutweighsCommonTerm(t *testing.T) {
	// "therapy" appears everywhere; "semaglutide" in one chunk. The
	// chunk holding the rare term must outrank chunks that only match
	// the common one.
	bm25 := NewBM25()
	bm25.Index([]*library.Chunk{
		corpusChunk("c1", "i1", "Combination therapy improved outcomes in the trial."),
		corpusChunk("c2", "i2", "Standard therapy had no cardiovascular benefit."),
		corpusChunk("c3", "i3", "Semaglutide therapy reduced weight substantially."),
	})

	hits := bm25.TopK("semaglutide therapy", 3)
	if len(hits) < 1 || hits[0].ChunkID != "c3" {
		t.Errorf("top hit = %v, want c3 first", hits)
	}
}

func TestBM25_EmptyCorpusAndEmptyQuery(t *testing.T) {
	bm25 := NewBM25()
	bm25.Index(nil)
	if hits := bm25.TopK("anything", 5); hits != nil {
		t.Errorf("empty corpus should return nil, got %v", hits)
	}

	bm25.Index([]*library.Chunk{corpusChunk("c1", "i1", "some text here")})
	if hits := bm25.TopK("the of a", 5); hits != nil {
		t.Errorf("all-stopword query should return nil, got %v", hits)
	}
}

func TestBM25_TopKLimitAndDeterminism(t *testing.T) {
	chunks := []*library.Chunk{
		corpusChunk("c-b", "i1", "aspirin trial result"),
		corpusChunk("c-a", "i2", "aspirin trial result"),
		corpusChunk("c-c", "i3", "aspirin trial result"),
	}
	bm25 := NewBM25()
	bm25.Index(chunks)

	hits := bm25.TopK("aspirin", 2)
	if len(hits) != 2 {
		t.Fatalf("TopK(2) returned %d hits", len(hits))
	}
	// Identical scores: tie-break on chunk ID
	if hits[0].ChunkID != "c-a" || hits[1].ChunkID != "c-b" {
		t.Errorf("tie-break order = %s, %s; want c-a, c-b", hits[0].ChunkID, hits[1].ChunkID)
	}
}
