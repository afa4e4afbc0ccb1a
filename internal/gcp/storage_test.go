package gcp

import "testing"

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://archives/runs/abc.zip", wantBucket: "archives", wantObject: "runs/abc.zip"},
		{uri: "gs://archives/abc.zip", wantBucket: "archives", wantObject: "abc.zip"},
		{uri: "/tmp/abc.zip", wantErr: true},
		{uri: "gs://archives", wantErr: true},
		{uri: "gs:///abc.zip", wantErr: true},
	}

	for _, tt := range tests {
		bucket, object, err := ParseGCSURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGCSURI(%q) expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGCSURI(%q) unexpected error: %v", tt.uri, err)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("ParseGCSURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CONVERTER_TEST_VALUE", "set")
	if got := GetEnv("CONVERTER_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("GetEnv = %q, want %q", got, "set")
	}
	if got := GetEnv("CONVERTER_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q, want %q", got, "fallback")
	}
}

func TestWorkflowParent(t *testing.T) {
	got := WorkflowParent("proj", "us-central1", "conversion-complete")
	want := "projects/proj/locations/us-central1/workflows/conversion-complete"
	if got != want {
		t.Errorf("WorkflowParent = %q, want %q", got, want)
	}
}
