package ports

import (
	"context"
	"errors"
)

// ErrAdmissionRejected is the only error ingress returns for a well-formed event.
var ErrAdmissionRejected = errors.New("admission rejected")

// AdmissionSite names the call site a token bucket protects.
type AdmissionSite string

const (
	AdmissionIngest   AdmissionSite = "ingest"
	AdmissionDispatch AdmissionSite = "dispatch"
)

// AdmissionController takes one token from both the tenant and the global
// bucket of site, or neither. Rejection returns ErrAdmissionRejected and never
// blocks.
type AdmissionController interface {
	Admit(ctx context.Context, site AdmissionSite, tenant string) error
}
