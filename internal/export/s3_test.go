package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-profiler/internal/model"
)

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func record() *model.MergedRecord {
	return &model.MergedRecord{
		CompanyID: "acme_corp",
		Identity:  model.CompanyIdentity{Name: "Acme Corp"},
		Fields: map[string]model.ProvenancedValue{
			"annual_revenue": {Value: "$10B", SourcePhase: model.PhaseRegulatory},
		},
		ExtractionTimestamp: time.Date(2026, 3, 1, 12, 30, 0, 250000000, time.UTC),
	}
}

func TestExport_PutsJSON(t *testing.T) {
	up := new(mockUploader)
	var body []byte
	up.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "profiles" &&
			aws.ToString(in.Key) == "merged/acme_corp/20260301T123000.250000Z.json" &&
			aws.ToString(in.ContentType) == "application/json"
	})).Run(func(args mock.Arguments) {
		body, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil)

	key, err := New(up, "profiles", "").Export(context.Background(), record())
	require.NoError(t, err)
	assert.Equal(t, "merged/acme_corp/20260301T123000.250000Z.json", key)

	var got model.MergedRecord
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "acme_corp", got.CompanyID)
	assert.Equal(t, model.PhaseRegulatory, got.Fields["annual_revenue"].SourcePhase)
	up.AssertExpectations(t)
}

func TestExport_CustomPrefix(t *testing.T) {
	e := New(new(mockUploader), "b", "/snapshots/profiles/")
	assert.Equal(t, "snapshots/profiles/acme_corp/20260301T123000.250000Z.json", e.Key(record()))
}

func TestExport_UploadError(t *testing.T) {
	up := new(mockUploader)
	up.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := New(up, "profiles", "").Export(context.Background(), record())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://profiles/merged/acme_corp/")
	assert.Contains(t, err.Error(), "access denied")
}

func TestExport_RejectsEmptyRecord(t *testing.T) {
	_, err := New(new(mockUploader), "profiles", "").Export(context.Background(), &model.MergedRecord{})
	assert.Error(t, err)
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestNewS3Client_CustomEndpoint(t *testing.T) {
	c, err := NewS3Client(context.Background(), Config{
		Region:          "eu-central-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	opts := c.Options()
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
	assert.Equal(t, "eu-central-1", opts.Region)
}
