package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// lambdaInvokeAPI abstracts the Lambda client for testability.
type lambdaInvokeAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaResolver implements domain.TenantResolver by invoking the customer
// lookup function. Every failure mode resolves to ErrUnauthorizedSender:
// an unresolvable sender is treated as unauthorized, never half-processed.
type LambdaResolver struct {
	functionName string
	client       lambdaInvokeAPI
	logger       *slog.Logger
}

// NewLambdaResolver creates a resolver using the default AWS credential chain.
func NewLambdaResolver(ctx context.Context, cfg config.LookupConfig, logger *slog.Logger) (*LambdaResolver, error) {
	if cfg.FunctionName == "" {
		return nil, fmt.Errorf("lookup function name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &LambdaResolver{
		functionName: cfg.FunctionName,
		client:       lambda.NewFromConfig(awsCfg),
		logger:       logger,
	}, nil
}

// newLambdaResolverWithClient creates a LambdaResolver with an injected
// client (for testing).
func newLambdaResolverWithClient(functionName string, client lambdaInvokeAPI, logger *slog.Logger) *LambdaResolver {
	return &LambdaResolver{functionName: functionName, client: client, logger: logger}
}

// lookupEnvelope is the function's API Gateway-style response.
type lookupEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Resolve implements domain.TenantResolver.
func (r *LambdaResolver) Resolve(ctx context.Context, phoneNumber string) (*domain.TenantIdentity, error) {
	clean := strings.TrimPrefix(phoneNumber, "whatsapp:")

	payload, err := json.Marshal(map[string]string{"phone_number": clean})
	if err != nil {
		return nil, fmt.Errorf("marshal lookup payload: %w", err)
	}

	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &r.functionName,
		Payload:      payload,
	})
	if err != nil {
		r.logger.Warn("customer lookup invoke failed", "error", err)
		return nil, fmt.Errorf("%w: lookup invoke: %v", domain.ErrUnauthorizedSender, err)
	}
	if out.FunctionError != nil {
		r.logger.Warn("customer lookup function error", "error", *out.FunctionError)
		return nil, fmt.Errorf("%w: lookup function error: %s", domain.ErrUnauthorizedSender, *out.FunctionError)
	}

	var envelope lookupEnvelope
	if err := json.Unmarshal(out.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed lookup response: %v", domain.ErrUnauthorizedSender, err)
	}

	switch envelope.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		r.logger.Warn("unknown sender", "phone", clean)
		return nil, fmt.Errorf("%w: no customer for phone %s", domain.ErrUnauthorizedSender, clean)
	default:
		return nil, fmt.Errorf("%w: lookup returned status %d", domain.ErrUnauthorizedSender, envelope.StatusCode)
	}

	var identity domain.TenantIdentity
	if err := json.Unmarshal([]byte(envelope.Body), &identity); err != nil {
		return nil, fmt.Errorf("%w: malformed lookup body: %v", domain.ErrUnauthorizedSender, err)
	}
	if identity.CustomerID == "" || identity.CompanyID == "" {
		return nil, fmt.Errorf("%w: lookup body missing identity fields", domain.ErrUnauthorizedSender)
	}

	r.logger.Info("resolved tenant", "customer_id", identity.CustomerID, "company_id", identity.CompanyID)
	return &identity, nil
}

// Compile-time interface check.
var _ domain.TenantResolver = (*LambdaResolver)(nil)
