package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"fieldnote/internal/domain"
)

// fakeInvoke returns a canned Lambda response.
type fakeInvoke struct {
	payload       string
	functionError string
	err           error

	gotPayload []byte
}

func (f *fakeInvoke) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.gotPayload = in.Payload
	if f.err != nil {
		return nil, f.err
	}
	out := &lambda.InvokeOutput{Payload: []byte(f.payload)}
	if f.functionError != "" {
		out.FunctionError = aws.String(f.functionError)
	}
	return out, nil
}

func newTestResolver(fake *fakeInvoke) *LambdaResolver {
	return newLambdaResolverWithClient("customer-lookup", fake, slog.New(slog.DiscardHandler))
}

func TestResolve(t *testing.T) {
	body, _ := json.Marshal(domain.TenantIdentity{
		CustomerID: "cust_123", CompanyID: "comp_456", CompanyName: "Acme Corp",
	})
	envelope, _ := json.Marshal(map[string]any{"statusCode": 200, "body": string(body)})
	fake := &fakeInvoke{payload: string(envelope)}

	identity, err := newTestResolver(fake).Resolve(context.Background(), "whatsapp:+14155552671")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.CustomerID != "cust_123" || identity.CompanyID != "comp_456" {
		t.Errorf("identity = %+v", identity)
	}

	// The channel prefix never reaches the lookup function.
	var sent map[string]string
	json.Unmarshal(fake.gotPayload, &sent)
	if sent["phone_number"] != "+14155552671" {
		t.Errorf("sent phone = %q", sent["phone_number"])
	}
}

func TestResolve_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeInvoke
	}{
		{"not found", &fakeInvoke{payload: `{"statusCode":404,"body":"{\"error\":\"Customer not found\"}"}`}},
		{"server error", &fakeInvoke{payload: `{"statusCode":500,"body":"{}"}`}},
		{"invoke failure", &fakeInvoke{err: fmt.Errorf("timeout")}},
		{"function error", &fakeInvoke{payload: `{"errorMessage":"boom"}`, functionError: "Unhandled"}},
		{"malformed envelope", &fakeInvoke{payload: `not json`}},
		{"malformed body", &fakeInvoke{payload: `{"statusCode":200,"body":"not json"}`}},
		{"empty identity", &fakeInvoke{payload: `{"statusCode":200,"body":"{}"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestResolver(tt.fake).Resolve(context.Background(), "+14155552671")
			if !errors.Is(err, domain.ErrUnauthorizedSender) {
				t.Errorf("err = %v, want ErrUnauthorizedSender", err)
			}
		})
	}
}
