package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store backed by an in-memory fake HTTP transport.
// Only the S3 operations used by Store are implemented. Stores built from the
// same MockBucket share objects.
func NewMockForTests(bucket *MockBucket, prefix string) *Store {
	if bucket == nil {
		bucket = NewMockBucket()
	}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		o.RetryMaxAttempts = 1
	})
	return &Store{client: client, bucket: "mock-bucket", prefix: strings.Trim(prefix, "/")}
}

// MockBucket is a fake S3 bucket served through http.RoundTripper. It handles
// GetObject, PutObject, DeleteObject and ListObjectsV2.
type MockBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailPuts makes every PutObject answer 500 once set.
	FailPuts bool
}

// NewMockBucket returns an empty fake bucket.
func NewMockBucket() *MockBucket {
	return &MockBucket{objects: make(map[string][]byte)}
}

// Keys returns the stored object keys in order.
func (m *MockBucket) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header, ContentLength: int64(len(body))}
}

func (m *MockBucket) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("<?xml version=\"1.0\"?><ListBucketResult><IsTruncated>false</IsTruncated>")
		for _, k := range keys {
			b.WriteString("<Contents><Key>")
			b.WriteString(xmlEscape(k))
			b.WriteString("</Key><Size>")
			b.WriteString(strconv.Itoa(len(m.objects[k])))
			b.WriteString("</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>")
		}
		b.WriteString("</ListBucketResult>")
		return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}}), nil
	}
	switch req.Method {
	case http.MethodPut:
		if m.FailPuts {
			return response(http.StatusInternalServerError, []byte("<Error><Code>InternalError</Code><Message>injected</Message></Error>"), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		body, _ := io.ReadAll(req.Body)
		if req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			dec, err := decodeChunked(body)
			if err != nil {
				return response(http.StatusBadRequest, nil, nil), nil
			}
			body = dec
		}
		m.objects[key] = body
		return response(http.StatusOK, nil, http.Header{"ETag": {"\"etag\""}}), nil
	case http.MethodGet:
		if obj, ok := m.objects[key]; ok {
			return response(http.StatusOK, obj, http.Header{
				"Content-Length": {strconv.Itoa(len(obj))},
				"Content-Type":   {"application/octet-stream"},
				"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
				"ETag":           {"\"etag\""},
			}), nil
		}
		return response(http.StatusNotFound, []byte("<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>"), http.Header{"Content-Type": {"application/xml"}}), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

// decodeChunked decodes an aws-chunked body: repeated "<hex>[;ext]\r\n<data>\r\n"
// frames terminated by a zero-length frame and optional trailers.
func decodeChunked(b []byte) ([]byte, error) {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return nil, fmt.Errorf("chunk header missing")
		}
		header, _, _ := strings.Cut(string(b[:i]), ";")
		size, err := strconv.ParseInt(header, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size: %w", err)
		}
		b = b[i+2:]
		if size == 0 {
			return out, nil
		}
		if int64(len(b)) < size+2 {
			return nil, fmt.Errorf("short chunk")
		}
		out = append(out, b[:size]...)
		b = b[size+2:]
	}
}

func xmlEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
