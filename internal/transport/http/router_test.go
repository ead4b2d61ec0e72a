package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/gin-gonic/gin"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
	"contest-settlement/internal/infra/memory"
	"contest-settlement/internal/payout"
)

var (
	start = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	end   = start.Add(time.Hour)
)

func newTestService(t *testing.T) *app.ContestService {
	t.Helper()
	fees, err := app.NewFeeRegistry(100, 1000, "treasury")
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	distributor, err := payout.NewDistributor("")
	if err != nil {
		t.Fatalf("distributor: %v", err)
	}
	return app.NewContestService(app.Deps{
		Contests:    memory.NewContestStore(),
		AnswerKeys:  memory.NewAnswerKeyRepository(memory.NewStaticAnswerKeys(nil), time.Minute),
		Ledger:      memory.NewLedger(),
		Fees:        fees,
		Distributor: distributor,
		Log:         slog.Disabled,
	}).WithClock(func() time.Time { return start.Add(30 * time.Minute) })
}

func newTestRouter(t *testing.T) (*gin.Engine, *app.ContestService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service := newTestService(t)
	return NewRouter(service, slog.Disabled), service
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", DisplayOrder: 0, Salt: "5e1d", CorrectAnswer: "4"},
		{ID: "q2", DisplayOrder: 1, Salt: "a0c2", CorrectAnswer: "Mars"},
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func createContest(t *testing.T, router http.Handler) domain.ContestView {
	t.Helper()
	req := map[string]any{
		"name":          "Friday quiz",
		"code":          "FRI",
		"entryFee":      1000,
		"commissionBps": 500,
		"maxWinners":    2,
		"mode":          "tiered",
		"startTime":     start,
		"endTime":       end,
		"questions":     sampleQuestions(),
	}
	var view domain.ContestView
	if code := doJSON(t, router, http.MethodPost, "/contests", req, &view); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	return view
}

func TestRESTSettlementFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	view := createContest(t, router)
	base := "/contests/" + view.ID

	for _, player := range []string{"alice", "bob", "carol"} {
		if code := doJSON(t, router, http.MethodPost, base+"/join", map[string]string{"playerId": player}, nil); code != http.StatusOK {
			t.Fatalf("join %s: status %d", player, code)
		}
	}
	sheets := map[string][]string{"alice": {"4", "Mars"}, "bob": {"4", "Venus"}, "carol": {"5", "Venus"}}
	for player, answers := range sheets {
		sub := domain.PlayerSubmission{PlayerID: player}
		for i, a := range answers {
			sub.Answers = append(sub.Answers, domain.SubmittedAnswer{DisplayOrder: i, Answer: a})
		}
		var score scoreResponse
		if code := doJSON(t, router, http.MethodPost, base+"/submissions", sub, &score); code != http.StatusOK {
			t.Fatalf("submit %s: status %d", player, code)
		}
		if score.Questions != 2 {
			t.Fatalf("unexpected score response: %+v", score)
		}
	}

	var errResp ErrorResponse
	if code := doJSON(t, router, http.MethodGet, base+"/results", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("results before settlement: status %d", code)
	}

	var settlement domain.Settlement
	if code := doJSON(t, router, http.MethodPost, base+"/settle", nil, &settlement); code != http.StatusOK {
		t.Fatalf("settle: status %d", code)
	}
	if len(settlement.Winners) != 2 || settlement.Winners[0].PlayerID != "alice" {
		t.Fatalf("unexpected winners: %+v", settlement.Winners)
	}
	if code := doJSON(t, router, http.MethodPost, base+"/settle", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("second settle: status %d", code)
	}

	var proofs []domain.VerifiedAnswer
	if code := doJSON(t, router, http.MethodGet, base+"/proofs/bob", nil, &proofs); code != http.StatusOK || len(proofs) != 2 {
		t.Fatalf("proofs: status %d, %d answers", code, len(proofs))
	}

	if code := doJSON(t, router, http.MethodDelete, base, nil, &errResp); code != http.StatusConflict {
		t.Fatalf("close with unclaimed prizes: status %d", code)
	}
	for _, player := range []string{"alice", "bob"} {
		var p domain.Payout
		if code := doJSON(t, router, http.MethodPost, base+"/claims", map[string]string{"playerId": player}, &p); code != http.StatusOK {
			t.Fatalf("claim %s: status %d", player, code)
		}
		if p.ID == "" || p.PlayerID != player {
			t.Fatalf("unexpected payout %+v", p)
		}
	}
	if code := doJSON(t, router, http.MethodPost, base+"/claims", map[string]string{"playerId": "carol"}, &errResp); code != http.StatusConflict {
		t.Fatalf("claim by non-winner: status %d", code)
	}
	if code := doJSON(t, router, http.MethodDelete, base, nil, nil); code != http.StatusNoContent {
		t.Fatalf("close: status %d", code)
	}

	var results domain.Results
	if code := doJSON(t, router, http.MethodGet, base+"/results", nil, &results); code != http.StatusOK {
		t.Fatalf("results after close: status %d", code)
	}
	if results.Contest.Status != domain.StatusClosed {
		t.Fatalf("expected closed contest, got %s", results.Contest.Status)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	var errResp ErrorResponse
	if code := doJSON(t, router, http.MethodGet, "/contests/missing", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("missing contest: status %d", code)
	}
	if errResp.Message == "" {
		t.Fatalf("expected an error message")
	}

	bad := map[string]any{"name": "x", "code": "X", "mode": "lottery", "maxWinners": 1, "startTime": start, "endTime": end, "questions": sampleQuestions()}
	if code := doJSON(t, router, http.MethodPost, "/contests", bad, &errResp); code != http.StatusBadRequest {
		t.Fatalf("bad mode: status %d", code)
	}

	view := createContest(t, router)
	forged := sampleQuestions()
	forged[0].CorrectAnswer = "5"
	if code := doJSON(t, router, http.MethodPost, "/contests/"+view.ID+"/answer-key", map[string]any{"questions": forged}, &errResp); code != http.StatusUnprocessableEntity {
		t.Fatalf("forged key: status %d", code)
	}
	if code := doJSON(t, router, http.MethodPost, "/contests/"+view.ID+"/join", map[string]string{}, &errResp); code != http.StatusBadRequest {
		t.Fatalf("join without player: status %d", code)
	}
	if code := doJSON(t, router, http.MethodPost, "/contests/"+view.ID+"/settle", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("settle without submissions: status %d", code)
	}
}

func TestCommitEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	var resp commitResponse
	code := doJSON(t, router, http.MethodPost, "/commitments", commitRequest{Questions: sampleQuestions()}, &resp)
	if code != http.StatusOK {
		t.Fatalf("commit: status %d", code)
	}
	if resp.HashKind != "sha256" || len(resp.Leaves) != 2 || resp.Root == (domain.Digest{}) {
		t.Fatalf("unexpected commit response: %+v", resp)
	}

	var view domain.ContestView
	req := map[string]any{
		"name": "Root only", "code": "ROOT", "maxWinners": 1, "mode": "even",
		"startTime": start, "endTime": end, "answerRoot": resp.Root,
	}
	if code := doJSON(t, router, http.MethodPost, "/contests", req, &view); code != http.StatusCreated {
		t.Fatalf("create from root: status %d", code)
	}
	if view.Params.AnswerRoot != resp.Root {
		t.Fatalf("root not kept")
	}
	if code := doJSON(t, router, http.MethodPost, "/contests/"+view.ID+"/answer-key", map[string]any{"questions": sampleQuestions()}, nil); code != http.StatusNoContent {
		t.Fatalf("register key: status %d", code)
	}

	var errResp ErrorResponse
	if code := doJSON(t, router, http.MethodPost, "/commitments", commitRequest{HashKind: "md5", Questions: sampleQuestions()}, &errResp); code != http.StatusBadRequest {
		t.Fatalf("unknown hash: status %d", code)
	}
}

func TestFeesEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	var snap domain.FeeSnapshot
	if code := doJSON(t, router, http.MethodGet, "/fees", nil, &snap); code != http.StatusOK || snap.Version != 1 {
		t.Fatalf("fees: status %d, %+v", code, snap)
	}
	if code := doJSON(t, router, http.MethodPut, "/fees", feesRequest{PlatformFeeBps: 200}, &snap); code != http.StatusOK || snap.Version != 2 {
		t.Fatalf("update fees: status %d, %+v", code, snap)
	}
	var errResp ErrorResponse
	if code := doJSON(t, router, http.MethodPut, "/fees", feesRequest{PlatformFeeBps: 5000}, &errResp); code != http.StatusBadRequest {
		t.Fatalf("fee over cap: status %d", code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}
