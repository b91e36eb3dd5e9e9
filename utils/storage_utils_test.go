package utils

import (
	"strings"
	"testing"
)

func TestS3ClientHasBoundedTimeout(t *testing.T) {
	c := getS3Client()
	if c.Config.HTTPClient == nil || c.Config.HTTPClient.Timeout == 0 {
		t.Fatal("expected s3 client with a bounded http timeout")
	}
}

func TestArchiveWebhookPayloadRequiresCredentials(t *testing.T) {
	if S3Configured() {
		t.Skip("s3 credentials present in environment")
	}
	_, err := ArchiveWebhookPayload("stripe", "evt_1", []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}
