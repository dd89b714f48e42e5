package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hcsrelay/internal/models"
	ledger "hcsrelay/ledger/client"
	"hcsrelay/ledger/types"
	core "hcsrelay/relay/service/core"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testTopic = "0.0.5678"
	testTxID  = "0.0.1234@1690000000.000"
)

type stubProducer struct {
	published []models.Message
}

func (p *stubProducer) Publish(_ context.Context, msg models.Message) error {
	p.published = append(p.published, msg)
	return nil
}

func (p *stubProducer) PublishBatch(ctx context.Context, msgs []models.Message) error {
	for _, m := range msgs {
		_ = p.Publish(ctx, m)
	}
	return nil
}

func (p *stubProducer) Close() error { return nil }

type fixture struct {
	client  *ledger.MockLedgerClient
	handler http.Handler
}

func newFixture(t *testing.T, maxBody int64, routeOpts RouteOptions, opts ...core.Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := ledger.NewMockLedgerClient(ctrl)
	client.EXPECT().TopicID().Return(testTopic).AnyTimes()
	client.EXPECT().Network().Return("testnet").AnyTimes()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	svc := core.NewService(client, logger, opts...)
	return &fixture{
		client:  client,
		handler: NewRelayHandler(svc, logger, maxBody).Routes(routeOpts),
	}
}

func (f *fixture) do(method, path, body, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	rec := f.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "testnet", body["network"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
	assert.NoError(t, err)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestSubmitMessage_Hello(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})
	f.client.EXPECT().
		SubmitMessage(gomock.Any(), []byte("hello")).
		Return(&types.Receipt{TransactionID: testTxID, Status: "SUCCESS"}, nil)

	rec := f.do(http.MethodPost, "/api/hcs/submit-message", `{"message":"hello"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, testTxID, body["transactionId"])
	assert.Equal(t, testTopic, body["topicId"])
	assert.Equal(t, "hello", body["message"])
	assert.Equal(t, map[string]any{}, body["metadata"])
	assert.NotContains(t, body, "consensusTimestamp")
	_, err := time.Parse(time.RFC3339Nano, body["submittedAt"].(string))
	assert.NoError(t, err)
}

func TestSubmitMessage_MetadataRoundTrip(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})
	f.client.EXPECT().
		SubmitMessage(gomock.Any(), gomock.Any()).
		Return(&types.Receipt{TransactionID: testTxID, ConsensusTimestamp: "1690000001.000000002"}, nil)

	metadata := `{"type":"credit_issuance","project":{"id":7,"tonnes":12.5,"tags":["solar","eu"]},"verified":true}`
	rec := f.do(http.MethodPost, "/api/hcs/submit-message",
		`{"message":"{\"action\":\"issue\"}","metadata":`+metadata+`}`, "application/json; charset=utf-8")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Message            string          `json:"message"`
		Metadata           json.RawMessage `json:"metadata"`
		ConsensusTimestamp string          `json:"consensusTimestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `{"action":"issue"}`, body.Message)
	assert.JSONEq(t, metadata, string(body.Metadata))
	assert.Equal(t, "1690000001.000000002", body.ConsensusTimestamp)
}

func TestSubmitMessage_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantError   string
	}{
		{"missing message", `{}`, "application/json", "Message is required"},
		{"empty message", `{"message":""}`, "application/json", "Message is required"},
		{"null message", `{"message":null}`, "application/json", "Message is required"},
		{"numeric message", `{"message":42}`, "application/json", "Invalid JSON body"},
		{"malformed json", `{"message":`, "application/json", "Invalid JSON body"},
		{"array metadata", `{"message":"x","metadata":[1,2]}`, "application/json", "Invalid metadata"},
		{"wrong content type", `{"message":"x"}`, "text/plain", "Content-Type must be application/json"},
		{"no content type", `{"message":"x"}`, "", "Content-Type must be application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, RouteOptions{})
			f.client.EXPECT().SubmitMessage(gomock.Any(), gomock.Any()).Times(0)

			rec := f.do(http.MethodPost, "/api/hcs/submit-message", tt.body, tt.contentType)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, "validation", body["kind"])
		})
	}
}

func TestSubmitMessage_BodyTooLarge(t *testing.T) {
	f := newFixture(t, 64, RouteOptions{})
	f.client.EXPECT().SubmitMessage(gomock.Any(), gomock.Any()).Times(0)

	big := `{"message":"` + strings.Repeat("a", 200) + `"}`
	rec := f.do(http.MethodPost, "/api/hcs/submit-message", big, "application/json")
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decodeBody(t, rec)["error"])
}

func TestSubmitMessage_LedgerFailureThenHealthy(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})
	f.client.EXPECT().
		SubmitMessage(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("INVALID_TOPIC_ID"))

	rec := f.do(http.MethodPost, "/api/hcs/submit-message", `{"message":"hello"}`, "application/json")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to submit message to HCS", body["error"])
	assert.Equal(t, "ledger_submission_failure", body["kind"])
	assert.Contains(t, body["details"], "INVALID_TOPIC_ID")

	rec = f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitMessage_PanicYieldsGenericError(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})
	f.client.EXPECT().
		SubmitMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, []byte) (*types.Receipt, error) {
			panic("secret operator key leaked in panic")
		})

	req := httptest.NewRequest(http.MethodPost, "/api/hcs/submit-message", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-panic")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	body := decodeBody(t, rec)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, "internal", body["kind"])
	assert.Contains(t, body["details"], "req-panic")

	rec = f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	for _, path := range []string{"/", "/nope", "/api/hcs", "/api/hcs/enqueue-message"} {
		rec := f.do(http.MethodGet, path, "", "")
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		body := decodeBody(t, rec)
		assert.Equal(t, "Endpoint not found", body["error"])
		assert.Equal(t, "not_found", body["kind"])
	}
}

func TestWrongMethodIsNotFound(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/hcs/submit-message"},
		{http.MethodPut, "/api/hcs/submit-message"},
		{http.MethodPost, "/api/hcs/transaction/" + testTxID},
		{http.MethodDelete, "/api/hcs/topic/" + testTopic + "/messages"},
		{http.MethodPost, "/health"},
	}
	for _, tc := range cases {
		rec := f.do(tc.method, tc.path, "", "")
		require.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.Empty(t, rec.Header().Get("Allow"))
		body := decodeBody(t, rec)
		assert.Equal(t, "Endpoint not found", body["error"])
		assert.Equal(t, "not_found", body["kind"])
	}
}

func TestQueryTransaction(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	rec := f.do(http.MethodGet, "/api/hcs/transaction/"+testTxID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, testTxID, body["transactionId"])
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, "Use Mirror Node API for detailed transaction information", body["note"])
}

func TestQueryTopicMessages(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{})

	rec := f.do(http.MethodGet, "/api/hcs/topic/"+testTopic+"/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, testTopic, body["topicId"])
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, []any{}, body["messages"])
	assert.Equal(t, "Use Mirror Node API to retrieve topic messages", body["note"])

	rec = f.do(http.MethodGet, "/api/hcs/topic/"+testTopic+"/messages?limit=25", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(25), decodeBody(t, rec)["limit"])

	limits := map[string]float64{
		"abc": 10,
		"2.5": 10,
		"0":   10,
		"-3":  10,
		"":    10,
		"100": 100,
		"101": 100,
		"500": 100,
	}
	for raw, want := range limits {
		rec = f.do(http.MethodGet, "/api/hcs/topic/"+testTopic+"/messages?limit="+raw, "", "")
		require.Equal(t, http.StatusOK, rec.Code, raw)
		assert.Equal(t, want, decodeBody(t, rec)["limit"], raw)
	}
}

func TestEnqueueMessage(t *testing.T) {
	requests := &stubProducer{}
	f := newFixture(t, 0, RouteOptions{}, core.WithRequestProducer(requests))
	f.client.EXPECT().SubmitMessage(gomock.Any(), gomock.Any()).Times(0)

	rec := f.do(http.MethodPost, "/api/hcs/enqueue-message", `{"message":"later","metadata":{"k":1}}`, "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["requestId"])

	require.Len(t, requests.published, 1)
	req := requests.published[0].(*models.AnchorRequest)
	assert.Equal(t, "later", req.Message)
	assert.JSONEq(t, `{"k":1}`, string(req.Metadata))
}

func TestMetricsRoute(t *testing.T) {
	metrics := core.NewMetrics()
	f := newFixture(t, 0, RouteOptions{MetricsPath: "/metrics", MetricsHandler: metrics.Handler()}, core.WithMetrics(metrics))
	f.client.EXPECT().
		SubmitMessage(gomock.Any(), gomock.Any()).
		Return(&types.Receipt{TransactionID: testTxID}, nil)

	rec := f.do(http.MethodPost, "/api/hcs/submit-message", `{"message":"hello"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hcsrelay_submissions_total{outcome="success"} 1`)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, 0, RouteOptions{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
