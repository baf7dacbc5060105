package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestOkSetsOkTrueAndMergesPayload(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	ok(c, gin.H{"foo": "bar"})

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if body["foo"] != "bar" {
		t.Fatalf("expected payload merged, got %v", body)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d want 200", w.Code)
	}
}

func TestOkHandlesNilPayload(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	ok(c, nil)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestFailReturnsHTTP200WithOkFalse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fail(c, "something went wrong")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d want 200 (domain failures don't change HTTP status)", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["ok"] != false {
		t.Fatalf("expected ok:false, got %v", body["ok"])
	}
	if body["error"] != "something went wrong" {
		t.Fatalf("got error %v", body["error"])
	}
}

func TestFailErrHandlesNilError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	failErr(c, nil)

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "unknown error" {
		t.Fatalf("got error %v", body["error"])
	}
}

func TestBadRequestUsesHTTP400(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	badRequest(c, "malformed input")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d want 400", w.Code)
	}
}
