package domain

import "context"

// TenantIdentity is the result of resolving a sender's phone number.
// It namespaces every storage key written for the message and is looked up
// once per message, never cached across invocations.
type TenantIdentity struct {
	CustomerID  string `json:"customer_id"`
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
}

// TenantResolver maps a bare phone number to a tenant. Implementations fail
// closed: not-found, transport errors, and malformed responses are all
// reported as ErrUnauthorizedSender — the caller cannot and must not
// distinguish them.
type TenantResolver interface {
	Resolve(ctx context.Context, phoneNumber string) (*TenantIdentity, error)
}
