package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"moff.io/moff-wallet/pkg/errors"
)

// ParameterAPI is the part of the SSM client used here.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Clients struct {
	region    string
	ssmClient ParameterAPI
}

// New loads the default AWS config for region.
func New(ctx context.Context, region string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "unable to load SDK config")
	}
	return &Clients{region: region, ssmClient: ssm.NewFromConfig(cfg)}, nil
}

func NewWithSSM(region string, api ParameterAPI) *Clients {
	return &Clients{region: region, ssmClient: api}
}

func (s *Clients) GetParameterFromSSM(ctx context.Context, paramName string) (*ssmtypes.Parameter, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	parameter, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return nil, errors.WrapAndReport(err, "query parameter from ssm")
	}
	return parameter.Parameter, nil
}

// GetParameterValue returns the decrypted value of paramName.
func (s *Clients) GetParameterValue(ctx context.Context, paramName string) (string, error) {
	p, err := s.GetParameterFromSSM(ctx, paramName)
	if err != nil {
		return "", err
	}
	if p == nil || p.Value == nil || *p.Value == "" {
		return "", errors.Errorf("ssm parameter %v is empty", paramName)
	}
	return *p.Value, nil
}
