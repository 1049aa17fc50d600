package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tanq16/pullq/internal/types"
)

type fakeGetter struct {
	objects map[string]string
}

func (g *fakeGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := g.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		ContentLength: aws.Int64(int64(len(body))),
		Body:          io.NopCloser(strings.NewReader(body)),
	}, nil
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		bucket     string
		key        string
		wantErrMsg bool
	}{
		{"s3://bucket/key.bin", "bucket", "key.bin", false},
		{"S3://bucket/dir/key.bin", "bucket", "dir/key.bin", false},
		{"s3://bucket", "", "", true},
		{"s3://bucket/dir/", "", "", true},
		{"s3:///key", "", "", true},
		{"http://bucket/key", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseURL(tt.url)
		if tt.wantErrMsg {
			if !errors.Is(err, types.ErrMalformedURL) {
				t.Errorf("ParseURL(%q) error = %v, want ErrMalformedURL", tt.url, err)
			}
			continue
		}
		if err != nil || bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseURL(%q) = %q, %q, %v", tt.url, bucket, key, err)
		}
	}
}

func TestFetcher_Open(t *testing.T) {
	builds := 0
	getter := &fakeGetter{objects: map[string]string{"dir/a.bin": "abcdef"}}
	f := NewFetcherWithFactory(func(ctx context.Context, bucket string) (ObjectGetter, error) {
		builds++
		return getter, nil
	})

	for range 2 {
		resp, err := f.Open(context.Background(), "s3://bucket/dir/a.bin")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "abcdef" || resp.Length != 6 || resp.FileName != "a.bin" || !resp.OK() {
			t.Errorf("response = %+v body %q", resp, body)
		}
	}
	if builds != 1 {
		t.Errorf("client built %d times, want 1", builds)
	}
}

func TestFetcher_MissingKey(t *testing.T) {
	f := NewFetcherWithFactory(func(ctx context.Context, bucket string) (ObjectGetter, error) {
		return &fakeGetter{}, nil
	})
	_, err := f.Open(context.Background(), "s3://bucket/nope")
	var te *types.TransportError
	if !errors.As(err, &te) || te.StatusCode != 404 {
		t.Errorf("Open() error = %v, want 404 TransportError", err)
	}
}

func TestFetcher_ClientError(t *testing.T) {
	f := NewFetcherWithFactory(func(ctx context.Context, bucket string) (ObjectGetter, error) {
		return nil, errors.New("no credentials")
	})
	_, err := f.Open(context.Background(), "s3://bucket/key")
	if !errors.Is(err, types.ErrTransport) {
		t.Errorf("Open() error = %v, want ErrTransport", err)
	}
}

func TestFetcher_SlowClientDoesNotBlockOtherBuckets(t *testing.T) {
	getter := &fakeGetter{objects: map[string]string{"a.bin": "abc"}}
	release := make(chan struct{})
	building := make(chan struct{})
	f := NewFetcherWithFactory(func(ctx context.Context, bucket string) (ObjectGetter, error) {
		if bucket == "slow" {
			close(building)
			<-release
		}
		return getter, nil
	})

	slowDone := make(chan error, 1)
	go func() {
		resp, err := f.Open(context.Background(), "s3://slow/a.bin")
		if err == nil {
			resp.Body.Close()
		}
		slowDone <- err
	}()
	<-building

	fastDone := make(chan error, 1)
	go func() {
		resp, err := f.Open(context.Background(), "s3://fast/a.bin")
		if err == nil {
			resp.Body.Close()
		}
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		if err != nil {
			t.Errorf("fast bucket Open() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast bucket blocked behind slow client build")
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Errorf("slow bucket Open() error = %v", err)
	}
}
