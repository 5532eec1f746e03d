package requestor

import "testing"

func TestSnakeCaseParamsConvertsKeys(t *testing.T) {
	in := map[string]any{
		"callSid": "abc",
		"nested": map[string]any{
			"accountSid": "xyz",
		},
	}
	out := SnakeCaseParams(in).(map[string]any)
	if out["call_sid"] != "abc" {
		t.Fatalf("expected call_sid key, got %v", out)
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["account_sid"] != "xyz" {
		t.Fatalf("expected nested account_sid key, got %v", out["nested"])
	}
}

func TestSnakeCaseParamsPreservesExceptionKeys(t *testing.T) {
	in := map[string]any{
		"customerData": map[string]any{
			"someCamelKey": "value",
		},
		"sip": map[string]any{
			"callId": "keep-me",
		},
	}
	out := SnakeCaseParams(in).(map[string]any)

	cd, ok := out["customerData"].(map[string]any)
	if !ok || cd["someCamelKey"] != "value" {
		t.Fatalf("expected customerData inner keys preserved, got %v", out["customerData"])
	}
	sip, ok := out["sip"].(map[string]any)
	if !ok || sip["callId"] != "keep-me" {
		t.Fatalf("expected sip inner keys preserved, got %v", out["sip"])
	}
}

func TestSnakeCaseParamsHandlesSlicesOfObjects(t *testing.T) {
	in := map[string]any{
		"listItems": []any{
			map[string]any{"itemId": "1"},
			map[string]any{"itemId": "2"},
		},
	}
	out := SnakeCaseParams(in).(map[string]any)
	items, ok := out["list_items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected list_items slice of 2, got %v", out["list_items"])
	}
	first, ok := items[0].(map[string]any)
	if !ok || first["item_id"] != "1" {
		t.Fatalf("expected item_id converted inside slice element, got %v", items[0])
	}
}
