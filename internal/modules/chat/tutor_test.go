package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestTutorAnswersFromDocument(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			if schemaName != "tutor_answer" {
				t.Fatalf("unexpected schema %q", schemaName)
			}
			if !strings.Contains(user, "build phase") {
				t.Fatalf("retrieved excerpts missing from prompt:\n%s", user)
			}
			return map[string]any{"answer": "The build phase hashes the smaller table."}, nil
		},
	}
	messages := &memMessages{}
	deps := TutorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: messages}

	out, err := Answer(context.Background(), deps, TutorInput{
		JobID:   jobID,
		Message: "what happens in the build phase of a hash join?",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if out.Answer == refusalAnswer {
		t.Fatalf("tutor refused a question the document covers")
	}
	if len(out.Citations) == 0 {
		t.Fatalf("grounded answer carries no citations")
	}
	found := false
	for _, c := range out.Citations {
		if strings.Contains(c, "Hash Join Phases") {
			found = true
		}
	}
	if !found {
		t.Fatalf("citations %v missing the matching chapter", out.Citations)
	}
	if len(messages.rows) != 2 {
		t.Fatalf("recorded %d chat messages, want user + assistant", len(messages.rows))
	}
}

func TestTutorRefusesOffDocumentQuestions(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := &fakeAI{}
	deps := TutorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}}

	out, err := Answer(context.Background(), deps, TutorInput{
		JobID:   jobID,
		Message: "who won the world cup in 1998?",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if out.Answer != refusalAnswer {
		t.Fatalf("answer = %q, want refusal", out.Answer)
	}
	if len(out.Citations) != 0 {
		t.Fatalf("refusal carries citations: %v", out.Citations)
	}
	if ai.calls != 0 {
		t.Fatalf("model called %d times for an unanswerable question", ai.calls)
	}
}

func TestTutorNeverWritesVersions(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{"answer": "From the overview: hash joins and merge joins."}, nil
		},
	}
	deps := TutorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}}

	before := versionCount(t, ledger, jobID)
	if _, err := Answer(context.Background(), deps, TutorInput{JobID: jobID, Message: "explain the merge join chapter"}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if after := versionCount(t, ledger, jobID); after != before {
		t.Fatalf("tutoring changed version count %d -> %d", before, after)
	}
}

func TestTutorPinsRequestedVersion(t *testing.T) {
	ledger, jobID := seedLedger(t, 3)
	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{"answer": "answered"}, nil
		},
	}
	messages := &memMessages{}
	deps := TutorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: messages}

	out, err := Answer(context.Background(), deps, TutorInput{
		JobID:   jobID,
		Version: 1,
		Message: "explain the hash join build phase",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if out.Version != 1 {
		t.Fatalf("answered against v%d, want pinned v1", out.Version)
	}
	if messages.rows[0].VersionNumber != 1 {
		t.Fatalf("chat history scoped to v%d, want v1", messages.rows[0].VersionNumber)
	}
}

func TestTutorUnknownVersion(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	deps := TutorDeps{Log: testLogger(t), AI: &fakeAI{}, Ledger: ledger, Messages: &memMessages{}}

	_, err := Answer(context.Background(), deps, TutorInput{JobID: jobID, Version: 9, Message: "anything"})
	if err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestTutorNoDocumentYet(t *testing.T) {
	ledger, _ := seedLedger(t, 1)
	deps := TutorDeps{Log: testLogger(t), AI: &fakeAI{}, Ledger: ledger, Messages: &memMessages{}}

	_, err := Answer(context.Background(), deps, TutorInput{JobID: uuid.New(), Message: "anything"})
	if err == nil {
		t.Fatalf("expected error for job without versions")
	}
}
