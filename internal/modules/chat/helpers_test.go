package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

func testLogger(t testing.TB) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type fakeAI struct {
	generateFn func(schemaName, user string) (map[string]any, error)
	calls      int
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.generateFn == nil {
		return nil, fmt.Errorf("unexpected GenerateJSON(%s)", schemaName)
	}
	return f.generateFn(schemaName, user)
}

func (f *fakeAI) GenerateVisionJSON(ctx context.Context, system, user string, images [][]byte, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("vision calls have no place in chat")
}

type memMessages struct {
	rows []*types.ChatMessage
}

func (m *memMessages) Append(dbc dbctx.Context, msg *types.ChatMessage) error {
	m.rows = append(m.rows, msg)
	return nil
}

func (m *memMessages) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ChatMessage, error) {
	var out []*types.ChatMessage
	for _, r := range m.rows {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func studyDocument() types.DocumentContent {
	return types.DocumentContent{
		Title:    "Database Joins",
		Overview: []string{"This video covers hash joins and merge joins."},
		ConceptCards: []types.ConceptCard{
			{Term: "hash join", Explanation: "builds a hash table on the smaller input and probes it with the larger one"},
		},
		Chapters: []types.Chapter{
			{
				Heading:     "Hash Join Phases",
				Timestamp:   30,
				TimeLabel:   "00:30",
				ImageKey:    "jobs/x/frames/a.png",
				Caption:     "build and probe phases",
				Explanation: "the build phase hashes the smaller table, the probe phase streams the larger table",
				Confidence:  90,
			},
			{
				Heading:     "Merge Join",
				Timestamp:   90,
				TimeLabel:   "01:30",
				ImageKey:    "jobs/x/frames/b.png",
				Caption:     "sorted inputs merged",
				Explanation: "both inputs are sorted on the join key and merged in one pass",
				Confidence:  85,
			},
		},
		PracticeQuestions: []string{"When does a merge join beat a hash join?"},
	}
}

// seedLedger commits n versions of the study document and returns the
// ledger plus job id.
func seedLedger(t testing.TB, n int) (*services.MemoryVersionLedger, uuid.UUID) {
	t.Helper()
	ledger := services.NewMemoryVersionLedger(services.NewMemoryBlobStore())
	jobID := uuid.New()
	for i := 0; i < n; i++ {
		desc := "Initial document"
		if i > 0 {
			desc = fmt.Sprintf("edit %d", i)
		}
		if _, err := ledger.CreateVersion(context.Background(), jobID, studyDocument(), i, desc); err != nil {
			t.Fatalf("seed version %d: %v", i+1, err)
		}
	}
	return ledger, jobID
}

func versionCount(t testing.TB, ledger *services.MemoryVersionLedger, jobID uuid.UUID) int {
	t.Helper()
	list, err := ledger.ListVersions(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	return len(list)
}
