package s3infra

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewClient creates an S3 client. When endpointURL is set (LocalStack), it
// overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpointURL string) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if endpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TemplateStore loads mail templates from a bucket as {prefix}{id}.html.
// Parsed templates are cached for the life of the process.
type TemplateStore struct {
	client objectGetter
	bucket string
	prefix string

	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewTemplateStore(client objectGetter, bucket, prefix string) *TemplateStore {
	return &TemplateStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		cache:  make(map[string]*template.Template),
	}
}

func (s *TemplateStore) Template(ctx context.Context, id string) (*template.Template, error) {
	s.mu.RLock()
	t, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	key := s.prefix + id + ".html"
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", key, err)
	}
	t, err = template.New(id).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[id] = t
	s.mu.Unlock()
	return t, nil
}
