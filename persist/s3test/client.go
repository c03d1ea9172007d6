// Package s3test serves an in-process fake S3 for persist tests.
package s3test

import (
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
)

// Bucket is created empty on every fake returned by Client.
const Bucket = "lww-test"

// Client starts a fake S3 server holding an empty Bucket and returns a
// client for it. The server is shut down when t finishes.
func Client(t testing.TB) *s3.S3 {
	t.Helper()
	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials("TEST-ACCESSKEYID", "TEST-SECRETACCESSKEY", ""),
		Endpoint:         aws.String(ts.URL),
		Region:           aws.String("ca-west-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	require.NoError(t, err)
	client := s3.New(sess)
	_, err = client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(Bucket)})
	require.NoError(t, err)
	return client
}
