// Package idp integrates with the external identity provider. The provider
// owns authentication; this package only answers administrative questions
// about it, such as whether a subject exists before provisioning links it to
// an internal user.
package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// SubjectChecker verifies that a subject exists in the identity provider.
// Provisioning consults this before linking a subject to a user record; it is
// the mirror image of the request-time not-provisioned check, done once at
// provisioning time so authenticated requests never pay the network call.
type SubjectChecker interface {
	SubjectExists(ctx context.Context, subject string) (bool, error)
}

// Cognito implements SubjectChecker against an AWS Cognito user pool.
type Cognito struct {
	client     *cognitoidentityprovider.Client
	userPoolID string
}

// NewCognito creates a Cognito subject checker using the default AWS
// credential chain.
func NewCognito(ctx context.Context, region, userPoolID string) (*Cognito, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Cognito{
		client:     cognitoidentityprovider.NewFromConfig(cfg),
		userPoolID: userPoolID,
	}, nil
}

// SubjectExists reports whether the subject is a known user in the pool.
func (c *Cognito) SubjectExists(ctx context.Context, subject string) (bool, error) {
	_, err := c.client.AdminGetUser(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(subject),
	})
	if err != nil {
		var notFound *types.UserNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query user pool: %w", err)
	}

	return true, nil
}

// Static implements SubjectChecker with a fixed answer set. Used in
// development mode and tests.
type Static struct {
	Subjects []string
	AllowAll bool
}

// SubjectExists reports whether the subject is known to the static checker.
func (s *Static) SubjectExists(ctx context.Context, subject string) (bool, error) {
	if s.AllowAll {
		return true, nil
	}
	for _, known := range s.Subjects {
		if known == subject {
			return true, nil
		}
	}
	return false, nil
}
