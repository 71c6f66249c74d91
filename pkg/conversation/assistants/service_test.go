package assistants

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/tools"
	"agentrunner/pkg/weather"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type mockAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter)
}

func newMockAPI(t *testing.T) (*mockAPI, *Service) {
	t.Helper()
	api := &mockAPI{routes: make(map[string]func(w http.ResponseWriter))}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	svc, err := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return api, svc
}

func (m *mockAPI) on(method, path string, status int, body string) {
	m.routes[method+" "+path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (m *mockAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.requests = append(m.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	route, ok := m.routes[r.Method+" "+r.URL.Path]
	m.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":{"message":"no route"}}`, http.StatusNotFound)
		return
	}
	route(w)
}

func (m *mockAPI) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{Provider: ProviderAzure, APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "bedrock", APIKey: "k"})
	assert.Error(t, err)

	svc, err := New(Config{Provider: ProviderAzure, APIKey: "k", Endpoint: "https://example.openai.azure.com"})
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, svc.Provider())

	svc, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, svc.Provider())
}

func TestCreateThreadAndMessage(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("POST", "/threads", 200, `{"id":"thread_abc","object":"thread","created_at":1700000000,"metadata":{}}`)
	api.on("POST", "/threads/thread_abc/messages", 200, `{"id":"msg_1","object":"thread.message","created_at":1700000001,"thread_id":"thread_abc","role":"user","content":[{"type":"text","text":{"value":"hi","annotations":[]}}],"status":"completed","metadata":{}}`)

	th, err := svc.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", th.ID)

	id, err := svc.CreateMessage(context.Background(), th.ID, conversation.NewMessage{Role: conversation.RoleUser, Content: "What's the weather in Paris?"})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", id)

	req := api.last()
	assert.Contains(t, req.Body, `"role":"user"`)
	assert.Contains(t, req.Body, `"content":"What's the weather in Paris?"`)
}

const requiresActionRun = `{
	"id": "run_1", "object": "thread.run", "created_at": 1700000002,
	"thread_id": "thread_abc", "assistant_id": "asst_1", "status": "requires_action",
	"required_action": {
		"type": "submit_tool_outputs",
		"submit_tool_outputs": {"tool_calls": [
			{"id": "call_geo", "type": "function", "function": {"name": "getGeoCoordinates", "arguments": "{\"location\":\"Paris\"}"}},
			{"id": "call_wx", "type": "function", "function": {"name": "getWeather", "arguments": "{\"lat\":48.85,\"lon\":2.35}"}}
		]}
	},
	"instructions": "", "model": "gpt-4o", "tools": [], "metadata": {}
}`

func TestRunLifecycle(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("POST", "/threads/thread_abc/runs", 200, `{"id":"run_1","object":"thread.run","created_at":1700000002,"thread_id":"thread_abc","assistant_id":"asst_1","status":"queued","model":"gpt-4o","instructions":"","tools":[],"metadata":{}}`)
	api.on("GET", "/threads/thread_abc/runs/run_1", 200, requiresActionRun)
	api.on("POST", "/threads/thread_abc/runs/run_1/submit_tool_outputs", 200, `{"id":"run_1","object":"thread.run","created_at":1700000002,"thread_id":"thread_abc","assistant_id":"asst_1","status":"completed","model":"gpt-4o","instructions":"","tools":[],"metadata":{}}`)
	api.on("POST", "/threads/thread_abc/runs/run_1/cancel", 200, `{"id":"run_1","object":"thread.run","created_at":1700000002,"thread_id":"thread_abc","assistant_id":"asst_1","status":"cancelling","model":"gpt-4o","instructions":"","tools":[],"metadata":{}}`)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "thread_abc", "asst_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusQueued, run.Status)
	assert.Contains(t, api.last().Body, `"assistant_id":"asst_1"`)

	run, err = svc.GetRun(ctx, "thread_abc", "run_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusRequiresAction, run.Status)
	assert.Equal(t, "asst_1", run.AgentID)
	calls := run.PendingToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_geo", calls[0].ID)
	assert.Equal(t, conversation.ToolCallTypeFunction, calls[0].Type)
	assert.Equal(t, "getGeoCoordinates", calls[0].Name)
	assert.Equal(t, `{"location":"Paris"}`, calls[0].Arguments)

	run, err = svc.SubmitToolOutputs(ctx, "thread_abc", "run_1", []conversation.ToolResult{
		{ToolCallID: "call_geo", Output: `{"lat":48.85,"lon":2.35}`},
		{ToolCallID: "call_wx", Output: `{"error":"x"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusCompleted, run.Status)
	body := api.last().Body
	assert.Contains(t, body, `"tool_call_id":"call_geo"`)
	assert.Contains(t, body, `"tool_call_id":"call_wx"`)

	require.NoError(t, svc.CancelRun(ctx, "thread_abc", "run_1"))
}

func TestListRunsAndFailedRun(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("GET", "/threads/thread_abc/runs", 200, `{"object":"list","data":[
		{"id":"run_2","object":"thread.run","created_at":1700000010,"thread_id":"thread_abc","assistant_id":"asst_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"quota"},"model":"gpt-4o","instructions":"","tools":[],"metadata":{}},
		{"id":"run_1","object":"thread.run","created_at":1700000002,"thread_id":"thread_abc","assistant_id":"asst_1","status":"completed","model":"gpt-4o","instructions":"","tools":[],"metadata":{}}
	],"first_id":"run_2","last_id":"run_1","has_more":false}`)

	runs, err := svc.ListRuns(context.Background(), "thread_abc")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, conversation.StatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].LastError)
	assert.Equal(t, "rate_limit_exceeded", runs[0].LastError.Code)
	assert.Nil(t, runs[1].LastError)
	assert.Contains(t, api.last().Query, "order=desc")
}

func TestListMessages(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("GET", "/threads/thread_abc/messages", 200, `{"object":"list","data":[
		{"id":"msg_2","object":"thread.message","created_at":1700000020,"thread_id":"thread_abc","role":"assistant","status":"completed","metadata":{},
		 "content":[{"type":"text","text":{"value":"It is 18°C in Paris","annotations":[]}},{"type":"image_file","image_file":{"file_id":"f"}}]},
		{"id":"msg_1","object":"thread.message","created_at":1700000001,"thread_id":"thread_abc","role":"user","status":"completed","metadata":{},
		 "content":[{"type":"text","text":{"value":"weather?","annotations":[]}}]}
	],"has_more":false}`)

	msgs, err := svc.ListMessages(context.Background(), "thread_abc", conversation.OrderDesc)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].Content, 2)
	assert.Equal(t, "It is 18°C in Paris", msgs[0].Content[0].Text)
	assert.Equal(t, "image_file", msgs[0].Content[1].Type)
	assert.Empty(t, msgs[0].Content[1].Text)
	assert.Equal(t, int64(1700000020), msgs[0].CreatedAt.Unix())

	q := api.last().Query
	assert.Contains(t, q, "order=desc")
	assert.Contains(t, q, "limit=20")
}

func TestCreateOrUpdateAgent(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("POST", "/assistants", 200, `{"id":"asst_new","object":"assistant","created_at":1700000000,"name":"Weather Assistant","model":"gpt-4o","instructions":"x","tools":[],"metadata":{}}`)
	api.on("POST", "/assistants/asst_static", 200, `{"id":"asst_static","object":"assistant","created_at":1700000000,"name":"Weather Assistant","model":"gpt-4o","instructions":"x","tools":[],"metadata":{}}`)
	defs := tools.DefaultRegistry(weather.NewClient(weather.Config{})).ListDefinitions()

	agent, err := svc.CreateOrUpdateAgent(context.Background(), conversation.AgentSpec{
		Model: "gpt-4o", Name: "Weather Assistant", Instructions: "x", Tools: defs,
	})
	require.NoError(t, err)
	assert.Equal(t, "asst_new", agent.ID)
	req := api.last()
	assert.Equal(t, "/assistants", req.Path)
	assert.Contains(t, req.Body, `"name":"getGeoCoordinates"`)
	assert.Contains(t, req.Body, `"required":["location"]`)
	assert.Contains(t, req.Body, `"type":"function"`)

	agent, err = svc.CreateOrUpdateAgent(context.Background(), conversation.AgentSpec{
		ID: "asst_static", Model: "gpt-4o", Name: "Weather Assistant", Instructions: "x", Tools: defs,
	})
	require.NoError(t, err)
	assert.Equal(t, "asst_static", agent.ID)
	assert.Equal(t, "/assistants/asst_static", api.last().Path)
}

func TestErrorClassification(t *testing.T) {
	api, svc := newMockAPI(t)
	api.on("GET", "/threads/t/runs/r429", 429, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`)
	api.on("GET", "/threads/t/runs/r401", 401, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	api.on("GET", "/threads/t/runs/r500", 500, `{"error":{"message":"oops","type":"server_error"}}`)

	tests := map[string]conversation.ErrorType{
		"r429":    conversation.ErrorTypeRateLimit,
		"r401":    conversation.ErrorTypeAuth,
		"r500":    conversation.ErrorTypeTransient,
		"missing": conversation.ErrorTypeNotFound,
	}
	for runID, want := range tests {
		_, err := svc.GetRun(context.Background(), "t", runID)
		require.Error(t, err, runID)
		assert.Equal(t, want, conversation.TypeOf(err), runID)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	svc, err := New(Config{APIKey: "k", BaseURL: url + "/"})
	require.NoError(t, err)

	_, err = svc.CreateThread(context.Background())
	require.Error(t, err)
	assert.Equal(t, conversation.ErrorTypeTransient, conversation.TypeOf(err))
	assert.True(t, strings.Contains(err.Error(), "create_thread"))
}

func TestCancelledContextPassesThrough(t *testing.T) {
	_, svc := newMockAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetRun(ctx, "t", "r")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, conversation.Is(err, conversation.ErrorTypeTransient))
}
