package s3infra

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGetter struct{ mock.Mock }

func (m *mockGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func body(s string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s))}
}

func TestTemplateStore_LoadsAndCaches(t *testing.T) {
	g := new(mockGetter)
	g.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == "mail" && aws.ToString(in.Key) == "templates/user-activation-mail.html"
	})).Return(body("<p>{{.Name}}: {{.OTP}}</p>"), nil).Once()

	store := NewTemplateStore(g, "mail", "templates/")
	for i := 0; i < 3; i++ {
		tmpl, err := store.Template(context.Background(), "user-activation-mail")
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, tmpl.Execute(&buf, map[string]string{"Name": "Alice", "OTP": "12345"}))
		assert.Equal(t, "<p>Alice: 12345</p>", buf.String())
	}
	g.AssertNumberOfCalls(t, "GetObject", 1)
}

func TestTemplateStore_GetError(t *testing.T) {
	g := new(mockGetter)
	g.On("GetObject", mock.Anything, mock.Anything).Return(nil, errors.New("no such key"))

	_, err := NewTemplateStore(g, "mail", "templates/").Template(context.Background(), "missing")
	assert.ErrorContains(t, err, "no such key")
}

func TestTemplateStore_ParseError_NotCached(t *testing.T) {
	g := new(mockGetter)
	g.On("GetObject", mock.Anything, mock.Anything).Return(body("{{.Name"), nil).Once()
	g.On("GetObject", mock.Anything, mock.Anything).Return(body("ok"), nil).Once()

	store := NewTemplateStore(g, "mail", "")
	_, err := store.Template(context.Background(), "broken")
	assert.Error(t, err)

	_, err = store.Template(context.Background(), "broken")
	assert.NoError(t, err)
}
