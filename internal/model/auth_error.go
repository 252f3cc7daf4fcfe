package model

import "fmt"

// AuthErrorKind enumerates every way authentication can fail. The kind is
// decided where the failure happens and never re-derived downstream.
type AuthErrorKind int

const (
	KindTokenMalformed AuthErrorKind = iota + 1
	KindTokenSignatureInvalid
	KindTokenExpired
	KindUnknownUser
	KindInactiveUser
	KindRefreshExpired
	KindRefreshNotFound
)

var authErrorKindNames = map[AuthErrorKind]string{
	KindTokenMalformed:        "TokenMalformed",
	KindTokenSignatureInvalid: "TokenSignatureInvalid",
	KindTokenExpired:          "TokenExpired",
	KindUnknownUser:           "UnknownUser",
	KindInactiveUser:          "InactiveUser",
	KindRefreshExpired:        "RefreshExpired",
	KindRefreshNotFound:       "RefreshNotFound",
}

func (k AuthErrorKind) String() string {
	if name, ok := authErrorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AuthErrorKind(%d)", int(k))
}

type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func NewAuthError(kind AuthErrorKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthError of the same kind, so the sentinels below work
// with errors.Is regardless of the wrapped cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrTokenMalformed        = &AuthError{Kind: KindTokenMalformed}
	ErrTokenSignatureInvalid = &AuthError{Kind: KindTokenSignatureInvalid}
	ErrTokenExpired          = &AuthError{Kind: KindTokenExpired}
	ErrUnknownUser           = &AuthError{Kind: KindUnknownUser}
	ErrInactiveUser          = &AuthError{Kind: KindInactiveUser}
	ErrRefreshExpired        = &AuthError{Kind: KindRefreshExpired}
	ErrRefreshNotFound       = &AuthError{Kind: KindRefreshNotFound}
)
