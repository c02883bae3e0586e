package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests wires a *Store to a fake HTTP transport so the full SDK
// request path runs without a network. It implements just the operations the
// core.Store interface exercises: put, get, head, delete, and list-v2.
func NewMockForTests() *Store {
	transport := &fakeBucket{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  "mock-bucket",
	}
}

type fakeObject struct {
	payload     []byte
	contentType string
}

type fakeBucket struct {
	objects map[string]fakeObject
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	// path style: /<bucket>/<key>
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2"):
		return b.handleList(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodPut:
		return b.handlePut(req, key), nil
	case req.Method == http.MethodGet:
		return b.handleGet(key), nil
	case req.Method == http.MethodHead:
		return b.handleHead(key), nil
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, http.Header{}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func (b *fakeBucket) handlePut(req *http.Request, key string) *http.Response {
	payload, _ := io.ReadAll(req.Body)
	if decoded, ok := decodeChunked(payload); ok {
		payload = decoded
	}
	if _, exists := b.objects[key]; !exists {
		b.objects[key] = fakeObject{payload: payload, contentType: req.Header.Get("Content-Type")}
	}
	return respond(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}})
}

func (b *fakeBucket) handleGet(key string) *http.Response {
	obj, ok := b.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, http.Header{})
	}
	return respond(http.StatusOK, obj.payload, objectHeaders(obj))
}

func (b *fakeBucket) handleHead(key string) *http.Response {
	obj, ok := b.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, http.Header{})
	}
	return respond(http.StatusOK, nil, objectHeaders(obj))
}

func (b *fakeBucket) handleList(prefix string) *http.Response {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&xml, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			k, len(b.objects[k].payload))
	}
	xml.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(xml.String()), http.Header{"Content-Type": {"application/xml"}})
}

func objectHeaders(obj fakeObject) http.Header {
	return http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(obj.payload))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
}

func respond(status int, body []byte, headers http.Header) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     headers,
	}
}

// decodeChunked unwraps the single-chunk aws-chunked framing the SDK uses for
// signed uploads: "<hex size>\r\n<payload>\r\n0\r\n...".
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := parseHex(parts[0])
	if err != nil || int64(len(parts[1])) != size || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func parseHex(h string) (int64, error) {
	var v int64
	for _, c := range h {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v += int64(c - '0')
		case c >= 'a' && c <= 'f':
			v += int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v += int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex")
		}
	}
	return v, nil
}
