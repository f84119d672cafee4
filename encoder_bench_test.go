package aiqueue

import (
	"strings"
	"testing"
	"time"
)

func benchView() RecordView {
	now := time.Now()
	return RecordView{
		ID:        "5f0c7e52-8d7e-4c1e-9f1e-2a6f3c1b7d00",
		FindingID: "secret-42",
		Finding: Finding{
			ID: "secret-42", Title: "Hardcoded AWS key", Severity: SeverityCritical,
			Category: "Secrets", FilePath: "res/values/strings.xml", Line: 88,
			Evidence: "AKIA...", Confidence: 0.93, DetectedAt: now, Tags: []string{"aws", "secret"},
		},
		Prompt:         strings.Repeat("prompt ", 200),
		Status:         StatusCompleted,
		Response:       strings.Repeat("report body ", 400),
		PromptTokens:   350,
		ResponseTokens: 1200,
		Attempt:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		StartedAt:      now,
		CompletedAt:    now,
	}
}

func BenchmarkJSONEncoder_Encode(b *testing.B) {
	enc := &JSONEncoder{}
	v := benchView()
	warm, _ := enc.Encode(v)
	b.ReportAllocs()
	b.SetBytes(int64(len(warm)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enc.Encode(v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJSONEncoder_Decode(b *testing.B) {
	enc := &JSONEncoder{}
	data, _ := enc.Encode(benchView())
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var dst RecordView
		if err := enc.Decode(data, &dst); err != nil {
			b.Fatal(err)
		}
	}
}
