package utils

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Настройки для подключения к S3-совместимому хранилищу берём из окружения.
var (
	accessKey = os.Getenv("S3_ACCESS_KEY")
	secretKey = os.Getenv("S3_SECRET_KEY")
	bucket    = envOr("S3_BUCKET", "rpchub-webhooks")
	region    = envOr("S3_REGION", "us-east-1")
	endpoint  = os.Getenv("S3_ENDPOINT")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// S3Configured reports whether archive uploads have credentials to work with.
func S3Configured() bool {
	return accessKey != "" && secretKey != ""
}

func getS3Client() *s3.S3 {
	cfg := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
		// Загрузка архива не должна висеть дольше, чем ретрай провайдера.
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess := session.Must(session.NewSession(cfg))
	return s3.New(sess)
}

// ArchiveWebhookPayload stores a raw webhook body for audit and replay.
// Key layout: webhooks/<provider>/<yyyy-mm-dd>/<event_id>.json.
func ArchiveWebhookPayload(provider, eventID string, body []byte) (string, error) {
	if !S3Configured() {
		return "", fmt.Errorf("s3 credentials not configured")
	}
	if eventID == "" {
		eventID = fmt.Sprintf("unparsed-%d", time.Now().UnixNano())
	}

	key := fmt.Sprintf("webhooks/%s/%s/%s.json", provider, time.Now().UTC().Format("2006-01-02"), eventID)

	_, err := getS3Client().PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload payload to S3: %v", err)
	}

	return key, nil
}
