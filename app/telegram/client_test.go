package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient("test-token", server.Client())
	client.apiURL = server.URL
	return client, server
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 42},
		})
	})
	defer server.Close()

	msgID, err := client.SendMessage(context.Background(), -100, "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if msgID != 42 {
		t.Errorf("Expected message id 42, got %d", msgID)
	}
	if gotPath != "/sendMessage" {
		t.Errorf("Expected /sendMessage, got %s", gotPath)
	}
	if gotPayload["chat_id"].(float64) != -100 || gotPayload["text"] != "hello" {
		t.Errorf("Unexpected payload: %v", gotPayload)
	}
}

func TestClient_CopyMessage(t *testing.T) {
	var gotPayload map[string]any

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 7},
		})
	})
	defer server.Close()

	msgID, err := client.CopyMessage(context.Background(), -200, -100, 15, "new caption")
	if err != nil {
		t.Fatalf("CopyMessage failed: %v", err)
	}

	if msgID != 7 {
		t.Errorf("Expected message id 7, got %d", msgID)
	}
	if gotPayload["chat_id"].(float64) != -200 || gotPayload["from_chat_id"].(float64) != -100 {
		t.Errorf("Unexpected chat ids: %v", gotPayload)
	}
	if gotPayload["caption"] != "new caption" {
		t.Errorf("Expected caption in payload, got %v", gotPayload)
	}
}

func TestClient_CopyMessage_EmptyCaptionOmitted(t *testing.T) {
	var gotPayload map[string]any

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 7},
		})
	})
	defer server.Close()

	if _, err := client.CopyMessage(context.Background(), -200, -100, 15, ""); err != nil {
		t.Fatalf("CopyMessage failed: %v", err)
	}

	if _, ok := gotPayload["caption"]; ok {
		t.Error("Expected empty caption to be omitted from payload")
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]any
		sentinel error
	}{
		{
			"rate limited",
			map[string]any{"ok": false, "error_code": 429, "description": "Too Many Requests: retry after 30",
				"parameters": map[string]any{"retry_after": 30}},
			rotation.ErrRateLimited,
		},
		{
			"permission denied",
			map[string]any{"ok": false, "error_code": 403, "description": "Forbidden: bot was kicked"},
			rotation.ErrPermissionDenied,
		},
		{
			"not found",
			map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"},
			rotation.ErrNotFound,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(c.response)
			})
			defer server.Close()

			_, err := client.SendMessage(context.Background(), -100, "x")
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, c.sentinel) {
				t.Errorf("Expected %v, got %v", c.sentinel, err)
			}
		})
	}
}

func TestClient_UnclassifiedError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: message text is empty"})
	})
	defer server.Close()

	_, err := client.SendMessage(context.Background(), -100, "")
	if err == nil {
		t.Fatal("Expected error")
	}
	if errors.Is(err, rotation.ErrRateLimited) || errors.Is(err, rotation.ErrPermissionDenied) || errors.Is(err, rotation.ErrNotFound) {
		t.Errorf("Expected unclassified error, got %v", err)
	}
}

func TestClient_GetUpdates(t *testing.T) {
	var gotPayload map[string]any

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{"update_id": 10, "channel_post": map[string]any{"message_id": 1, "date": 1717243200, "chat": map[string]any{"id": -100, "type": "channel"}, "text": "post"}},
			},
		})
	})
	defer server.Close()

	updates, err := client.GetUpdates(context.Background(), 10, 30)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}

	if len(updates) != 1 || updates[0].UpdateID != 10 {
		t.Fatalf("Unexpected updates: %+v", updates)
	}
	if updates[0].ChannelPost == nil || updates[0].ChannelPost.Text != "post" {
		t.Errorf("Unexpected channel post: %+v", updates[0].ChannelPost)
	}
	if gotPayload["offset"].(float64) != 10 {
		t.Errorf("Expected offset 10 in payload, got %v", gotPayload["offset"])
	}
}

func TestClient_GetUpdates_ZeroOffsetOmitted(t *testing.T) {
	var gotPayload map[string]any

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": []map[string]any{}})
	})
	defer server.Close()

	if _, err := client.GetUpdates(context.Background(), 0, 30); err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if _, ok := gotPayload["offset"]; ok {
		t.Error("Expected zero offset to be omitted from payload")
	}
}
