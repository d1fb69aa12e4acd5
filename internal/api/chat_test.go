package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tablechat/tablechat/internal/assistant"
)

func TestChatReturnsAnswer(t *testing.T) {
	fake := newFakeAssistant()
	fake.answer = assistant.Answer{
		Answer:   "Acme spent the most.",
		SQL:      "SELECT customer_name FROM upload_salescsv_00000001",
		Columns:  []string{"customer_name"},
		Data:     []map[string]any{{"customer_name": "Acme"}},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"message":"Who spent the most?","tables":["upload_salescsv_00000001","customers"]}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["answer"] != "Acme spent the most." || body["sql_query"] == "" {
		t.Fatalf("body = %#v", body)
	}
	if fake.lastQuestion != "Who spent the most?" || len(fake.lastTables) != 2 {
		t.Fatalf("ask args = %q %v", fake.lastQuestion, fake.lastTables)
	}
}

func TestChatEmptyResultEncodesEmptyData(t *testing.T) {
	fake := newFakeAssistant()
	fake.answer = assistant.Answer{Answer: "No rows.", SQL: "SELECT 1 WHERE false"}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"x","tables":["customers"]}`)))
	if !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestChatValidatesRequest(t *testing.T) {
	fake := newFakeAssistant()
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	for body, code := range map[string]string{
		`{"message":"  ","tables":["customers"]}`: "MESSAGE_REQUIRED",
		`{"message":"hi","tables":[]}`:            "TABLES_REQUIRED",
		`{"message":"hi"`:                         "INVALID_JSON",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, rr.Code)
		}
		if got := decodeBody(t, rr)["error_code"]; got != code {
			t.Fatalf("%s: error_code = %v, want %s", body, got, code)
		}
	}
	if fake.lastQuestion != "" {
		t.Fatalf("assistant should not be called, got %q", fake.lastQuestion)
	}
}

func TestChatRelaysRefusalAndUpstreamFailures(t *testing.T) {
	fake := newFakeAssistant()
	fake.err = &assistant.Error{Kind: assistant.KindInvalid, Code: "UNANSWERABLE", Message: "I cannot answer that from these tables."}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"weather?","tables":["customers"]}`)))
	body := decodeBody(t, rr)
	if rr.Code != http.StatusBadRequest || body["message"] != "I cannot answer that from these tables." {
		t.Fatalf("status = %d body = %#v", rr.Code, body)
	}

	fake.err = &assistant.Error{Kind: assistant.KindUpstream, Code: "COMPLETION_FAILED", Message: "completion request failed"}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"q","tables":["customers"]}`)))
	body = decodeBody(t, rr)
	if rr.Code != http.StatusBadGateway || body["retryable"] != true {
		t.Fatalf("status = %d body = %#v", rr.Code, body)
	}
}
