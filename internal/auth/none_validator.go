package auth

import "context"

// LocalUserID owns every record when authentication is disabled.
const LocalUserID = "local-user"

// NoneValidator accepts any request as the fixed local principal.
type NoneValidator struct{}

func NewNoneValidator() *NoneValidator {
	return &NoneValidator{}
}

func (n *NoneValidator) Validate(_ context.Context, _ string) (Principal, error) {
	return Principal{UserID: LocalUserID, Permissions: defaultPermissions}, nil
}
