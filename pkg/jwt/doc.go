// Package jwt verifies HS256 bearer tokens and resolves the caller's user id.
//
// The billing API does not manage users. It trusts tokens issued by the
// application's identity service, signed with a shared key, whose sub claim
// is the user id.
//
//	svc, err := jwt.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	r.Use(jwt.Middleware(svc, nil))
//
//	// in a handler
//	userID := jwt.UserIDFromContext(r.Context())
//
// Errors are sentinel values comparable with errors.Is.
package jwt
