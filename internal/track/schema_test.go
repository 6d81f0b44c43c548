package track

import "testing"

func TestValidateCallbackAcceptsProtocolBody(t *testing.T) {
	body := []byte(`{
		"key": "rev-1",
		"status": 2,
		"url": "http://docserver/cache/files/output.docx",
		"changesurl": "http://docserver/cache/files/changes.zip",
		"users": ["uid-1"],
		"actions": [{"type": 0, "userid": "uid-1"}],
		"filetype": "docx"
	}`)
	if err := ValidateCallback(body); err != nil {
		t.Fatalf("ValidateCallback: %v", err)
	}
}

func TestValidateCallbackRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"missing key":    `{"status": 2}`,
		"empty key":      `{"key": "", "status": 2}`,
		"missing status": `{"key": "rev-1"}`,
		"status range":   `{"key": "rev-1", "status": 12}`,
		"users shape":    `{"key": "rev-1", "status": 1, "users": "uid-1"}`,
		"not json":       `status=2`,
	}
	for name, body := range cases {
		if err := ValidateCallback([]byte(body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
