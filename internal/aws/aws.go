package aws

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	appconfig "moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Clients struct {
	bucketName string
	s3Client   s3API
	presigner  presignAPI
	ssmClient  ssmAPI
}

func Init(ctx context.Context, region, bucketName string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws sdk config")
	}
	s3Client := s3.NewFromConfig(cfg)
	return &Clients{
		bucketName: bucketName,
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		ssmClient:  ssm.NewFromConfig(cfg),
	}, nil
}

func (s *Clients) GetParameterFromSSM(ctx context.Context, paramName string) (string, error) {
	parameter, err := s.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "query parameter %v from ssm", paramName)
	}
	if parameter.Parameter == nil || parameter.Parameter.Value == nil {
		return "", errors.Errorf("parameter %v has no value", paramName)
	}
	return *parameter.Parameter.Value, nil
}

// ResolveSecrets replaces the secrets of c named in its aws.ssm section with
// the parameter values.
func (s *Clients) ResolveSecrets(ctx context.Context, c *appconfig.Configuration) error {
	names := c.AWS.SSM
	for _, secret := range []struct {
		param  string
		target *string
	}{
		{names.SentryDSN, &c.SentryDSN},
		{names.LarkAlarmWebhook, &c.LarkAlarmWebhook},
		{names.RedisPassword, &c.RedisCredential.Password},
		{names.PostgresPassword, &c.Postgres.Password},
	} {
		if secret.param == "" {
			continue
		}
		value, err := s.GetParameterFromSSM(ctx, secret.param)
		if err != nil {
			return err
		}
		*secret.target = value
		log.Debugf("aws - resolved %v from ssm", secret.param)
	}
	return nil
}

// UploadPairingQRCode stores png under key and returns a link to it that
// expires after expire.
func (s *Clients) UploadPairingQRCode(ctx context.Context, key string, png []byte, expire time.Duration) (string, error) {
	if s.bucketName == "" {
		return "", errors.New("s3 bucket not present")
	}
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(png),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", errors.WrapAndReport(err, "put object to s3")
	}
	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expire))
	if err != nil {
		return "", errors.WithStackAndReport(err)
	}
	return request.URL, nil
}
