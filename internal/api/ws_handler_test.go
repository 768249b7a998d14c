package api

import (
	"testing"

	"jobboard/internal/notify"
)

func TestAcceptTypes(t *testing.T) {
	if accept, err := acceptTypes(nil); accept != nil || err != nil {
		t.Fatalf("empty types: %v %v", accept, err)
	}
	accept, err := acceptTypes([]string{notify.TypeApplicationStatus})
	if err != nil || !accept[notify.TypeApplicationStatus] || accept[notify.TypeSavedSearchMatches] {
		t.Fatalf("unexpected filter %v %v", accept, err)
	}
	if _, err := acceptTypes([]string{"chat"}); err == nil {
		t.Fatal("unknown type should be rejected")
	}
}

func TestDecodeNotification(t *testing.T) {
	onlyStatus := map[string]bool{notify.TypeApplicationStatus: true}
	cases := []struct {
		name    string
		payload string
		accept  map[string]bool
		ok      bool
	}{
		{"status", `{"type":"application_status","application_id":3,"status":"REVIEW"}`, nil, true},
		{"filtered status", `{"type":"application_status","application_id":3}`, onlyStatus, true},
		{"filtered out", `{"type":"saved_search_matches","search_id":1,"new_matches":2}`, onlyStatus, false},
		{"unknown type", `{"type":"chat"}`, nil, false},
		{"malformed", `not json`, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := decodeNotification(tc.payload, tc.accept)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v (msg %+v)", ok, tc.ok, msg)
			}
		})
	}

	msg, _ := decodeNotification(`{"type":"application_status","application_id":3,"status":"REVIEW"}`, nil)
	if msg.ApplicationID != 3 || msg.Status != "REVIEW" {
		t.Fatalf("decoded %+v", msg)
	}
}
