package ml

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if New("", 0) != nil {
		t.Error("Empty URL must yield a nil client")
	}

	c := New("http://localhost:9", 5*time.Second)
	if c.httpClient.Timeout != MaxTimeout {
		t.Errorf("Timeout must clamp to %v, got %v", MaxTimeout, c.httpClient.Timeout)
	}

	c = New("http://localhost:9", 0)
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Zero timeout must default to %v, got %v", DefaultTimeout, c.httpClient.Timeout)
	}
}

func TestPredict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"probability": 0.95, "indicators": ["model: payee risk"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, DefaultTimeout)
	prediction := c.Predict(context.Background(), Request{Text: "pay now"})
	if prediction == nil {
		t.Fatal("Expected a prediction")
	}
	if prediction.Probability != 0.95 {
		t.Errorf("Expected probability 0.95, got %v", prediction.Probability)
	}
	if len(prediction.Indicators) != 1 {
		t.Errorf("Expected one indicator, got %v", prediction.Indicators)
	}
}

func TestPredict_NilOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"Non-2xx status",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		},
		{
			"Malformed body",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json")) },
		},
		{
			"Probability out of range",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"probability": 1.7}`)) },
		},
		{
			"Slow service",
			func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
				w.Write([]byte(`{"probability": 0.5}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, DefaultTimeout)
			if prediction := c.Predict(context.Background(), Request{Text: "x"}); prediction != nil {
				t.Errorf("Expected nil prediction, got %+v", prediction)
			}
		})
	}
}

func TestPredict_NilClient(t *testing.T) {
	var c *Client
	if c.Predict(context.Background(), Request{Text: "x"}) != nil {
		t.Error("Nil client must return nil, not panic")
	}
}

func TestPredict_UnreachableService(t *testing.T) {
	c := New("http://127.0.0.1:1", DefaultTimeout)
	if c.Predict(context.Background(), Request{Text: "x"}) != nil {
		t.Error("Unreachable service must yield nil")
	}
}
